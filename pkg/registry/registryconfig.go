package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"go.uber.org/zap"
)

var (
	insecurAccessRefs = regexp.MustCompile(`^[^/]+\.local/`)
)

type RegistryConfig struct {
	CraneOptions crane.Options
}

// New returns keychain auth options, insecure for any of refs on a .local registry
func New(refs ...string) (*RegistryConfig, error) {
	c := &RegistryConfig{}
	// https://github.com/google/go-containerregistry/blob/v0.13.0/pkg/crane/options.go#L43
	c.CraneOptions = crane.Options{
		Remote: []remote.Option{
			remote.WithAuthFromKeychain(authn.DefaultKeychain),
		},
		Keychain: authn.DefaultKeychain,
	}

	for _, ref := range refs {
		if insecurAccessRefs.MatchString(ref) {
			zap.L().Debug("insecure access enabled", zap.String("ref", ref))
			crane.Insecure(&c.CraneOptions)
			break
		}
	}

	return c, nil
}

// RequireDigest parses a pinned reference, which must carry a digest.
// A tag next to the digest is allowed but only the digest identifies the image.
func (c *RegistryConfig) RequireDigest(ref string) (name.Digest, error) {
	r, err := name.ParseReference(ref, c.CraneOptions.Name...)
	if err != nil {
		return name.Digest{}, fmt.Errorf("parse pinned reference %q: %w", ref, err)
	}
	d, ok := r.(name.Digest)
	if !ok {
		return name.Digest{}, fmt.Errorf("reference %q must be pinned by digest, not by tag", ref)
	}
	return d, nil
}

// Preflight checks that a pinned image is accessible and that the registry
// still serves the pinned digest for it
func (c *RegistryConfig) Preflight(ctx context.Context, pinned name.Digest) error {
	options := append([]remote.Option{remote.WithContext(ctx)}, c.CraneOptions.Remote...)
	desc, err := remote.Head(pinned, options...)
	if err != nil {
		zap.L().Error("preflight", zap.String("ref", pinned.String()), zap.Error(err))
		return fmt.Errorf("preflight %s: %w", pinned.String(), err)
	}
	if desc.Digest.String() != pinned.DigestStr() {
		return fmt.Errorf("preflight %s: registry returned digest %s", pinned.String(), desc.Digest)
	}
	zap.L().Debug("preflight ok",
		zap.String("ref", pinned.Name()),
		zap.String("mediaType", string(desc.MediaType)),
		zap.Int64("size", desc.Size),
	)
	return nil
}
