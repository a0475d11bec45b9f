package cloud

// Credentials holds a Tencent Cloud API credential pair. The engine never
// persists these; they arrive with each preload request and are passed
// through to the SDK.
type Credentials struct {
	SecretID  string
	SecretKey string
}

// RegionInfo is a top-level geographic deployment area.
type RegionInfo struct {
	Region string
	Name   string
	State  string
}

// ZoneInfo is an availability zone within a region.
type ZoneInfo struct {
	Zone  string
	Name  string
	State string
}

// ImageInfo is a machine image visible in one region.
type ImageInfo struct {
	ImageID     string
	Name        string
	Platform    string
	CreatedTime string
}

// InstanceInfo is a provisioned compute instance.
type InstanceInfo struct {
	InstanceID   string
	Name         string
	Status       string
	Zone         string
	InstanceType string
	ImageID      string
	CPU          int64
	Memory       int64
	PrivateIP    string
	PublicIP     string
	CreatedTime  string
}
