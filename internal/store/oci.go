package store

import (
	"fmt"
	"io"
	"os"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

// DocumentMediaType is the layer media type of published documents.
const DocumentMediaType = types.MediaType("application/vnd.attestview.document.v1+json")

// PublishOCI pushes the JSON document at inPath as a single-layer artifact
// and returns the digest-pinned reference.
func PublishOCI(inPath string, ociRef string) (string, error) {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return PublishBytes(raw, ociRef)
}

func PublishBytes(raw []byte, ociRef string) (string, error) {
	ref, err := name.ParseReference(ociRef, name.WithDefaultRegistry("ghcr.io"))
	if err != nil {
		return "", fmt.Errorf("parse oci ref: %w", err)
	}

	layer := static.NewLayer(raw, DocumentMediaType)
	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return "", fmt.Errorf("append layer: %w", err)
	}
	img = mutate.MediaType(img, types.OCIManifestSchema1)

	if err := remote.Write(ref, img, remote.WithAuthFromKeychain(authn.DefaultKeychain)); err != nil {
		return "", fmt.Errorf("push oci artifact: %w", err)
	}
	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("compute manifest digest: %w", err)
	}
	return ref.Context().Digest(digest.String()).String(), nil
}

// FetchOCI returns the first layer of the artifact at ociRef.
func FetchOCI(ociRef string) ([]byte, error) {
	ref, err := name.ParseReference(ociRef, name.WithDefaultRegistry("ghcr.io"))
	if err != nil {
		return nil, fmt.Errorf("parse oci ref: %w", err)
	}
	img, err := remote.Image(ref, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return nil, fmt.Errorf("pull oci artifact: %w", err)
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("read layers: %w", err)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("oci artifact has no layers")
	}

	rc, err := layers[0].Uncompressed()
	if err != nil {
		return nil, fmt.Errorf("read layer payload: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read layer bytes: %w", err)
	}
	return raw, nil
}

func PullOCI(ociRef string, outPath string) error {
	raw, err := FetchOCI(ociRef)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return fmt.Errorf("write pulled document: %w", err)
	}
	return nil
}
