package detection

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
)

// NewSession creates an AWS session for region. Credentials come from the
// SDK default chain.
func NewSession(region string, configs ...*aws.Config) (*session.Session, error) {
	cfg := aws.NewConfig().WithRegion(region)
	for _, c := range configs {
		cfg.MergeIn(c)
	}
	return session.NewSession(cfg)
}
