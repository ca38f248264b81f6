package masumi

import "github.com/google/uuid"

// NewPurchaserIdentifier returns a random identifier suitable for
// identifierFromPurchaser when the purchaser side of an integration does not
// supply its own correlation key.
func NewPurchaserIdentifier() string {
	return uuid.NewString()
}
