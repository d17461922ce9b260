// Package domainbind binds a deployed project's container to a public
// subdomain by upserting a Route53 A record, repurposed from single
// EC2-instance self-registration to one record per successfully built
// project.
package domainbind

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// recordTTL is kept low for fast failover; a freshly built container's IP
// can change on the next rebuild.
const recordTTL = 60

// ssmParameterPrefix namespaces the bookkeeping parameters this package
// writes, keyed per project subdomain.
const ssmParameterPrefix = "/shipgit/domains/"

// boundDomain is the bookkeeping record stored in SSM for each bound
// subdomain.
type boundDomain struct {
	Name         string `json:"name"`
	IP           string `json:"ip"`
	HostedZoneID string `json:"hosted_zone_id"`
}

// Binder creates or updates the DNS record that points name.<base domain>
// at ip. Implementations must tolerate repeated calls for the same name.
// The build executor calls Bind only when it inserts a project's first
// DomainRecord; later rebuilds of the same project do not call it again.
type Binder interface {
	Bind(ctx context.Context, name, ip string) error
}

// Noop is used when no hosted zone is configured; deployments stay
// reachable by IP:port only.
type Noop struct{}

func (Noop) Bind(context.Context, string, string) error { return nil }

// Route53Binder upserts an A record in a single hosted zone for every
// bound name.
type Route53Binder struct {
	hostedZoneID string
	baseDomain   string
	client       *route53.Client
	ssmClient    *ssm.Client
	logger       *slog.Logger
}

// NewRoute53Binder loads AWS config from the environment; unlike a
// self-registering instance manager it does not read EC2 instance
// metadata, since the hosted zone and base domain are supplied by
// configuration and records are per-project, not per-host.
func NewRoute53Binder(ctx context.Context, hostedZoneID, baseDomain string, logger *slog.Logger) (*Route53Binder, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Route53Binder{
		hostedZoneID: hostedZoneID,
		baseDomain:   baseDomain,
		client:       route53.NewFromConfig(cfg),
		ssmClient:    ssm.NewFromConfig(cfg),
		logger:       logger,
	}, nil
}

func (b *Route53Binder) Bind(ctx context.Context, name, ip string) error {
	fqdn := name + "." + b.baseDomain

	_, err := b.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(b.hostedZoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String(fmt.Sprintf("bind %s", name)),
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name: aws.String(fqdn),
					Type: types.RRTypeA,
					TTL:  aws.Int64(recordTTL),
					ResourceRecords: []types.ResourceRecord{{
						Value: aws.String(ip),
					}},
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert dns record for %s: %w", fqdn, err)
	}

	b.logger.Info("bound domain", "fqdn", fqdn, "ip", ip)

	if err := b.recordBinding(ctx, name, fqdn, ip); err != nil {
		b.logger.Error("failed to record domain binding in ssm", "fqdn", fqdn, "err", err)
	}

	return nil
}

// recordBinding stores the bound domain's current record in SSM Parameter
// Store so an out-of-band process (a cleanup Lambda, an audit job) can
// enumerate live bindings without querying Route53 directly.
func (b *Route53Binder) recordBinding(ctx context.Context, name, fqdn, ip string) error {
	data, err := json.Marshal(boundDomain{Name: fqdn, IP: ip, HostedZoneID: b.hostedZoneID})
	if err != nil {
		return fmt.Errorf("marshal domain binding: %w", err)
	}

	_, err = b.ssmClient.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(ssmParameterPrefix + name),
		Value:     aws.String(string(data)),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("store ssm parameter: %w", err)
	}
	return nil
}
