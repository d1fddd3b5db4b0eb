package batch

import (
	"fmt"
	"strconv"
	"strings"
)

// CorrelationID builds {org}_{repo}_{kind}_{number}. Org names cannot
// contain underscores, repo names can, so parsing splits the org off the
// front and kind/number off the back.
func CorrelationID(ref ItemRef) string {
	return fmt.Sprintf("%s_%s_%s_%d", ref.Org, ref.Repo, ref.Kind, ref.Number)
}

// ParseCorrelationID reconstructs the item identity from a correlation id.
func ParseCorrelationID(id string) (ItemRef, error) {
	org, rest, ok := strings.Cut(id, "_")
	if !ok || org == "" {
		return ItemRef{}, fmt.Errorf("%w: %q", ErrMalformedCorrelationID, id)
	}
	i := strings.LastIndex(rest, "_")
	if i < 0 {
		return ItemRef{}, fmt.Errorf("%w: %q", ErrMalformedCorrelationID, id)
	}
	head, numStr := rest[:i], rest[i+1:]
	j := strings.LastIndex(head, "_")
	if j <= 0 {
		return ItemRef{}, fmt.Errorf("%w: %q", ErrMalformedCorrelationID, id)
	}
	repo, kind := head[:j], ItemKind(head[j+1:])
	if !ValidOrg(org) || !ValidRepo(repo) {
		return ItemRef{}, fmt.Errorf("%w: bad org or repo name in %q", ErrMalformedCorrelationID, id)
	}
	if !kind.Valid() {
		return ItemRef{}, fmt.Errorf("%w: unknown item kind %q in %q", ErrMalformedCorrelationID, kind, id)
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return ItemRef{}, fmt.Errorf("%w: bad item number in %q", ErrMalformedCorrelationID, id)
	}
	return ItemRef{Org: org, Repo: repo, Kind: kind, Number: n}, nil
}
