package coordinator

import (
	"encoding/hex"
	"regexp"

	"github.com/zeebo/xxh3"
)

var safeToken = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// token returns a key token for id that is valid in every store adapter.
//
// Ids made only of letters, digits, '-' and '_' are used as is. Anything else
// (dots, slashes, wildcards, spaces) is replaced by "x" followed by the hex
// xxh3-128 hash of the id. The "x" keeps hashed tokens apart from a plain id
// that happens to be 32 hex characters.
func token(id string) string {
	if safeToken.MatchString(id) && !looksHashed(id) {
		return id
	}

	sum := xxh3.HashString128(id).Bytes()

	return "x" + hex.EncodeToString(sum[:])
}

func looksHashed(id string) bool {
	if len(id) != 33 || id[0] != 'x' {
		return false
	}
	_, err := hex.DecodeString(id[1:])

	return err == nil
}

type keyspace struct {
	namespace string
}

func (k keyspace) series(seriesID string) string {
	if k.namespace == "" {
		return token(seriesID)
	}

	return token(k.namespace) + "." + token(seriesID)
}

func (k keyspace) head(seriesID string) string {
	return k.series(seriesID) + ".head"
}

func (k keyspace) historyPrefix(seriesID string) string {
	return k.series(seriesID) + ".tx."
}

func (k keyspace) history(seriesID, txID string) string {
	return k.historyPrefix(seriesID) + txID
}
