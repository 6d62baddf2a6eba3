package device

import (
	"fmt"
	"strings"
)

const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Strips a 0x prefix if present. For 128-bit UUIDs in Bluetooth SIG base format
// (0000xxxx-0000-1000-8000-00805f9b34fb) the 16-bit short form is returned.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeID canonicalizes a device identifier for comparison. Platforms report
// identifiers as MAC addresses (aa:bb:..) or CoreBluetooth UUIDs, with or without
// separators and in either case.
func NormalizeID(id string) string {
	r := strings.NewReplacer(":", "", "-", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(id)))
}

// SameID reports whether two identifiers refer to the same device
func SameID(a, b string) bool {
	na := NormalizeID(a)
	return na != "" && na == NormalizeID(b)
}

// ShortenID returns a truncated identifier for display purposes
func ShortenID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ValidateIDs validates that identifiers are non-empty and well-formed.
// Returns normalized identifiers or an error.
func ValidateIDs(ids ...string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one device identifier is required")
	}

	result := make([]string, 0, len(ids))
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("device identifier at index %d cannot be empty", i)
		}
		normalized := NormalizeID(id)
		for _, r := range normalized {
			if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
				return nil, fmt.Errorf("invalid device identifier at index %d: %s", i, id)
			}
		}
		result = append(result, normalized)
	}
	return result, nil
}
