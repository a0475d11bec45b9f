package cloud

import (
	"context"
	"fmt"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	cvm "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/cvm/v20170312"
)

// publicImageType is the provider's tag for curated, shareable images.
const publicImageType = "PUBLIC_IMAGE"

// TencentFactory builds CVM clients backed by the Tencent Cloud SDK.
type TencentFactory struct{}

// NewTencentFactory returns a factory for real CVM clients.
func NewTencentFactory() *TencentFactory {
	return &TencentFactory{}
}

// New creates a CVM client scoped to the given credentials and region.
func (f *TencentFactory) New(creds Credentials, region string) (Client, error) {
	cred := common.NewCredential(creds.SecretID, creds.SecretKey)
	cpf := profile.NewClientProfile()

	client, err := cvm.NewClient(cred, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("failed to create cvm client for region %s: %w", region, err)
	}

	return &tencentClient{api: client}, nil
}

// tencentClient adapts the generated CVM SDK client to the Client interface.
type tencentClient struct {
	api *cvm.Client
}

func (c *tencentClient) DescribeRegions(ctx context.Context) ([]RegionInfo, error) {
	resp, err := c.api.DescribeRegionsWithContext(ctx, cvm.NewDescribeRegionsRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}

	regions := make([]RegionInfo, 0, len(resp.Response.RegionSet))
	for _, r := range resp.Response.RegionSet {
		regions = append(regions, RegionInfo{
			Region: deref(r.Region),
			Name:   deref(r.RegionName),
			State:  deref(r.RegionState),
		})
	}
	return regions, nil
}

func (c *tencentClient) DescribeZones(ctx context.Context) ([]ZoneInfo, error) {
	resp, err := c.api.DescribeZonesWithContext(ctx, cvm.NewDescribeZonesRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to describe zones: %w", err)
	}

	zones := make([]ZoneInfo, 0, len(resp.Response.ZoneSet))
	for _, z := range resp.Response.ZoneSet {
		zones = append(zones, ZoneInfo{
			Zone:  deref(z.Zone),
			Name:  deref(z.ZoneName),
			State: deref(z.ZoneState),
		})
	}
	return zones, nil
}

func (c *tencentClient) DescribePublicImages(ctx context.Context, limit int64) ([]ImageInfo, error) {
	req := cvm.NewDescribeImagesRequest()
	req.Limit = common.Uint64Ptr(uint64(limit))
	req.Filters = []*cvm.Filter{{
		Name:   common.StringPtr("image-type"),
		Values: []*string{common.StringPtr(publicImageType)},
	}}

	resp, err := c.api.DescribeImagesWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to describe images: %w", err)
	}

	images := make([]ImageInfo, 0, len(resp.Response.ImageSet))
	for _, img := range resp.Response.ImageSet {
		images = append(images, ImageInfo{
			ImageID:     deref(img.ImageId),
			Name:        deref(img.ImageName),
			Platform:    deref(img.Platform),
			CreatedTime: deref(img.CreatedTime),
		})
	}
	return images, nil
}

func (c *tencentClient) DescribeInstances(ctx context.Context, offset, limit int64) ([]InstanceInfo, error) {
	req := cvm.NewDescribeInstancesRequest()
	req.Offset = common.Int64Ptr(offset)
	req.Limit = common.Int64Ptr(limit)

	resp, err := c.api.DescribeInstancesWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances at offset %d: %w", offset, err)
	}

	instances := make([]InstanceInfo, 0, len(resp.Response.InstanceSet))
	for _, inst := range resp.Response.InstanceSet {
		info := InstanceInfo{
			InstanceID:   deref(inst.InstanceId),
			Name:         deref(inst.InstanceName),
			Status:       deref(inst.InstanceState),
			InstanceType: deref(inst.InstanceType),
			ImageID:      deref(inst.ImageId),
			CPU:          derefInt64(inst.CPU),
			Memory:       derefInt64(inst.Memory),
			CreatedTime:  deref(inst.CreatedTime),
		}
		if inst.Placement != nil {
			info.Zone = deref(inst.Placement.Zone)
		}
		if len(inst.PrivateIpAddresses) > 0 {
			info.PrivateIP = deref(inst.PrivateIpAddresses[0])
		}
		if len(inst.PublicIpAddresses) > 0 {
			info.PublicIP = deref(inst.PublicIpAddresses[0])
		}
		instances = append(instances, info)
	}
	return instances, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
