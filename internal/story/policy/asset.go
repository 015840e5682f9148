package policy

import (
	"strings"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
)

// AssetResolver is the asset-store collaborator. Resolve returns an error
// when ref cannot be served.
type AssetResolver interface {
	Resolve(ref string) error
}

// Manifest is a fixed set of known asset references.
type Manifest map[string]struct{}

// NewManifest builds a manifest from refs.
func NewManifest(refs ...string) Manifest {
	m := make(Manifest, len(refs))
	for _, ref := range refs {
		m[ref] = struct{}{}
	}
	return m
}

// Resolve returns UNKNOWN_ASSET for refs outside the manifest.
func (m Manifest) Resolve(ref string) error {
	if _, ok := m[ref]; ok {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeUnknownAsset, "unknown asset "+ref,
		map[string]string{"Asset": ref})
}

// CheckAssetPath rejects empty, absolute and traversing paths and anything
// outside [A-Za-z0-9._/-].
func CheckAssetPath(ref string) error {
	reason := assetPathProblem(ref)
	if reason == "" {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeUnsafeAssetPath,
		"unsafe asset path "+quote(ref)+": "+reason,
		map[string]string{"Asset": ref, "Reason": reason})
}

func assetPathProblem(ref string) string {
	if ref == "" {
		return "empty"
	}
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "\\") {
		return "absolute path"
	}
	if len(ref) >= 2 && ref[1] == ':' && isASCIILetter(ref[0]) {
		return "absolute path"
	}
	for i := 0; i < len(ref); i++ {
		if !allowedAssetByte(ref[i]) {
			return "disallowed character"
		}
	}
	for _, segment := range strings.Split(ref, "/") {
		if segment == ".." {
			return "parent traversal"
		}
	}
	return ""
}

func allowedAssetByte(b byte) bool {
	return isASCIILetter(b) || (b >= '0' && b <= '9') || b == '.' || b == '_' || b == '/' || b == '-'
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func quote(s string) string {
	return "\"" + s + "\""
}
