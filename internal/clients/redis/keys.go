package redis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cache key schemas and TTLs. Invalidation deletes by the prefixes these
// builders share.
const (
	TaxonomyTTL    = time.Hour
	TreeTTL        = 2 * time.Minute
	TreeGlobalTTL  = 5 * time.Minute
	DexUserTTL     = 5 * time.Minute
	DexOverviewTTL = 2 * time.Minute
)

func TaxonomyKey(normalizedName, sourceCode string) string {
	scope := sourceCode
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("taxonomy:%s:%s", normalizedName, scope)
}

func TreeKey(mode string, viewerID uuid.UUID) string {
	return fmt.Sprintf("tree:%s:%s", mode, viewerID)
}

func TreeSelectedKey(userIDs []uuid.UUID) string {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return "tree:selected:" + strings.Join(ids, "_")
}

func TreeGlobalKey() string {
	return "tree:global"
}

func ChunkKey(treeKey string, x, y int) string {
	return fmt.Sprintf("%s:chunk:%d:%d", treeKey, x, y)
}

// TreeUserPrefix matches every per-viewer tree key of one user, chunks
// included.
func TreeUserPrefix(mode string, viewerID uuid.UUID) string {
	return fmt.Sprintf("tree:%s:%s", mode, viewerID)
}

func DexUserAllKey(userID uuid.UUID) string {
	return fmt.Sprintf("dex:user:%s:all", userID)
}

func DexFriendsOverviewKey(userID uuid.UUID) string {
	return fmt.Sprintf("dex:friends_overview:%s", userID)
}
