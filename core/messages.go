package core

import "fmt"

// MaxTTL bounds a registration so expires_at cannot overflow
const MaxTTL uint64 = 10 * 365 * 24 * 60 * 60

// RegistrationMessage is the payload signed for a direct signed registration
func RegistrationMessage(did, endpoint string, ttl uint64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", did, endpoint, ttl))
}

// DeregistrationMessage is the payload signed for a direct signed deregistration
func DeregistrationMessage(did string) []byte {
	return []byte(did)
}

// EffectiveTTL applies the default to an omitted ttl and rejects zero or oversized values
func EffectiveTTL(ttl *uint64) (uint64, error) {
	if ttl == nil {
		return DefaultTTL, nil
	}
	if *ttl == 0 || *ttl > MaxTTL {
		return 0, fmt.Errorf("ttl must be between 1 and %d seconds: %w", MaxTTL, ErrInvalidRequest)
	}
	return *ttl, nil
}
