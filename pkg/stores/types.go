package stores

// Region is one row of the regions table. The full set is replaced
// atomically on every refresh.
type Region struct {
	Region    string `json:"region"`
	Name      string `json:"region_name"`
	State     string `json:"region_state"`
	UpdatedAt int64  `json:"updated_at"`
}

// Zone is one row of the zones table, scoped to its owning region.
type Zone struct {
	Zone      string `json:"zone"`
	Region    string `json:"region"`
	Name      string `json:"zone_name"`
	State     string `json:"zone_state"`
	UpdatedAt int64  `json:"updated_at"`
}

// Image is one row of the images table, scoped to (region, image type).
type Image struct {
	ImageID     string `json:"image_id"`
	Name        string `json:"image_name"`
	ImageType   string `json:"image_type"`
	Platform    string `json:"platform"`
	Region      string `json:"region"`
	CreatedTime string `json:"created_time"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Instance is one row of the instances table. Rows are upserted by
// instance ID and never deleted by a sync; instances that disappear from
// the provider are flagged Stale instead so externally-held IDs stay
// resolvable.
type Instance struct {
	InstanceID   string `json:"instance_id"`
	Name         string `json:"instance_name"`
	Status       string `json:"status"`
	Stale        bool   `json:"stale"`
	Region       string `json:"region"`
	Zone         string `json:"zone"`
	InstanceType string `json:"instance_type"`
	ImageID      string `json:"image_id"`
	CPU          int64  `json:"cpu"`
	Memory       int64  `json:"memory"`
	PrivateIP    string `json:"private_ip"`
	PublicIP     string `json:"public_ip"`
	CreatedTime  string `json:"created_time"`
	UpdatedAt    int64  `json:"updated_at"`
}

// PublicImageType is the image class this engine mirrors. Private and
// custom images belong to other tooling and are never touched here.
const PublicImageType = "PUBLIC_IMAGE"
