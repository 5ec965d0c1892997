package rpc

import (
	"context"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// CheckCompatibility verifies the server serves the expected network and, when
// minVersion is set, runs at least that release. Pre-release and build
// suffixes of the server version are ignored.
func (c *Client) CheckCompatibility(ctx context.Context, passphrase, minVersion string) error {
	network, err := c.GetNetwork(ctx)
	if err != nil {
		return err
	}
	if passphrase != "" && network.Passphrase != passphrase {
		return errors.Errorf("rpc server is on network %q, configured for %q", network.Passphrase, passphrase)
	}
	if minVersion == "" {
		return nil
	}

	constraint, err := version.NewConstraint(">= " + minVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid minimum server version %q", minVersion)
	}
	info, err := c.GetVersionInfo(ctx)
	if err != nil {
		return err
	}
	have, err := version.NewVersion(info.Version)
	if err != nil {
		return errors.Wrapf(err, "unparseable server version %q", info.Version)
	}
	if !constraint.Check(have.Core()) {
		return errors.Errorf("rpc server version %s does not satisfy %s", have, constraint)
	}
	return nil
}
