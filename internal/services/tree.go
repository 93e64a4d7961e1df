package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/clients/redis"
	"github.com/yungbote/biologidex-backend/internal/graph/layout"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
)

const (
	TreeModePersonal = "personal"
	TreeModeFriends  = "friends"
	TreeModeSelected = "selected"
	TreeModeGlobal   = "global"
)

// treeRanks is the fixed rank ordering of the hierarchy, root to leaf.
var treeRanks = []string{"kingdom", "phylum", "class", "order", "family", "genus", "species"}

var (
	ErrGlobalTreeForbidden = fmt.Errorf("global tree requires administrator access")
	ErrUnknownTreeMode     = fmt.Errorf("unknown tree mode")
)

// FriendCapture marks one scoped user's capture of an animal.
type FriendCapture struct {
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username"`
	CapturedAt time.Time `json:"captured_at"`
}

// TreeNode is one rendered vertex: either a virtual taxonomic node or
// an animal leaf.
type TreeNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Rank string `json:"rank"`

	// Animal leaves only.
	AnimalID          *uuid.UUID      `json:"animal_id,omitempty"`
	CommonName        string          `json:"common_name,omitempty"`
	CapturedByViewer  bool            `json:"captured_by_viewer,omitempty"`
	CapturedByFriends []FriendCapture `json:"captured_by_friends,omitempty"`
	CaptureCount      int64           `json:"capture_count,omitempty"`

	// Taxonomic nodes only.
	ChildrenCount int `json:"children_count,omitempty"`
	AnimalCount   int `json:"animal_count,omitempty"`
}

type TreeStats struct {
	TotalNodes  int `json:"total_nodes"`
	TotalEdges  int `json:"total_edges"`
	AnimalCount int `json:"animal_count"`
	UserCount   int `json:"user_count"`
}

// TreeData is the full projection: nodes, edges, positions, chunk
// distribution, and stats.
type TreeData struct {
	Mode        string                     `json:"mode"`
	Nodes       []TreeNode                 `json:"nodes"`
	Edges       []layout.Edge              `json:"edges"`
	Positions   map[string]layout.Position `json:"positions"`
	ChunkIndex  *layout.ChunkIndex         `json:"chunk_index"`
	Stats       TreeStats                  `json:"stats"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// TreeChunk is one spatial slice of a TreeData.
type TreeChunk struct {
	ChunkX    int                        `json:"chunk_x"`
	ChunkY    int                        `json:"chunk_y"`
	Nodes     []TreeNode                 `json:"nodes"`
	Edges     []layout.Edge              `json:"edges"`
	Positions map[string]layout.Position `json:"positions"`
	NodeCount int                        `json:"node_count"`
	EdgeCount int                        `json:"edge_count"`
}

type TreeService interface {
	GetTree(ctx context.Context, viewerID uuid.UUID, isAdmin bool, mode string, scopeIDs []uuid.UUID) (*TreeData, error)
	GetChunk(ctx context.Context, viewerID uuid.UUID, isAdmin bool, mode string, scopeIDs []uuid.UUID, x, y int) (*TreeChunk, error)
	Invalidate(ctx context.Context, viewerID uuid.UUID, isAdmin bool, global bool) error
}

type treeService struct {
	db         *gorm.DB
	log        *logger.Logger
	entryRepo  repos.DexEntryRepo
	animalRepo repos.AnimalRepo
	friendRepo repos.FriendshipRepo
	userRepo   repos.UserRepo
	cache      redis.CacheClient
	chunks     *layout.ChunkManager
}

func NewTreeService(
	db *gorm.DB,
	log *logger.Logger,
	entryRepo repos.DexEntryRepo,
	animalRepo repos.AnimalRepo,
	friendRepo repos.FriendshipRepo,
	userRepo repos.UserRepo,
	cache redis.CacheClient,
) TreeService {
	return &treeService{
		db:         db,
		log:        log.With("service", "TreeService"),
		entryRepo:  entryRepo,
		animalRepo: animalRepo,
		friendRepo: friendRepo,
		userRepo:   userRepo,
		cache:      cache,
		chunks:     layout.NewChunkManager(layout.DefaultChunkSize),
	}
}

func (ts *treeService) cacheKey(mode string, viewerID uuid.UUID, scoped []uuid.UUID) string {
	switch mode {
	case TreeModeGlobal:
		return redis.TreeGlobalKey()
	case TreeModeSelected:
		return redis.TreeSelectedKey(scoped)
	default:
		return redis.TreeKey(mode, viewerID)
	}
}

func treeTTL(mode string) time.Duration {
	if mode == TreeModeGlobal {
		return redis.TreeGlobalTTL
	}
	return redis.TreeTTL
}

// scopedUsers resolves the mode into the set of users whose captures
// feed the tree. Selected mode drops non-friends silently.
func (ts *treeService) scopedUsers(ctx context.Context, viewerID uuid.UUID, isAdmin bool, mode string, scopeIDs []uuid.UUID) ([]uuid.UUID, error) {
	switch mode {
	case TreeModePersonal:
		return []uuid.UUID{viewerID}, nil
	case TreeModeFriends:
		friendIDs, err := ts.friendRepo.GetAcceptedFriendIDs(ctx, nil, viewerID)
		if err != nil {
			return nil, err
		}
		return append([]uuid.UUID{viewerID}, friendIDs...), nil
	case TreeModeSelected:
		friendIDs, err := ts.friendRepo.GetAcceptedFriendIDs(ctx, nil, viewerID)
		if err != nil {
			return nil, err
		}
		allowed := make(map[uuid.UUID]struct{}, len(friendIDs))
		for _, id := range friendIDs {
			allowed[id] = struct{}{}
		}
		scoped := []uuid.UUID{viewerID}
		for _, id := range scopeIDs {
			if _, ok := allowed[id]; ok && id != viewerID {
				scoped = append(scoped, id)
			}
		}
		return scoped, nil
	case TreeModeGlobal:
		if !isAdmin {
			return nil, ErrGlobalTreeForbidden
		}
		return ts.userRepo.ListAllIDs(ctx, nil)
	default:
		return nil, ErrUnknownTreeMode
	}
}

func (ts *treeService) GetTree(ctx context.Context, viewerID uuid.UUID, isAdmin bool, mode string, scopeIDs []uuid.UUID) (*TreeData, error) {
	scoped, err := ts.scopedUsers(ctx, viewerID, isAdmin, mode, scopeIDs)
	if err != nil {
		return nil, err
	}

	key := ts.cacheKey(mode, viewerID, scoped)
	var cached TreeData
	if cErr := ts.cache.Get(ctx, key, &cached); cErr == nil {
		return &cached, nil
	} else if !errors.Is(cErr, redis.ErrCacheMiss) {
		ts.log.Warn("tree cache read failed", "key", key, "error", cErr)
	}

	tree, err := ts.buildTree(ctx, viewerID, mode, scoped)
	if err != nil {
		return nil, err
	}

	if sErr := ts.cache.Set(ctx, key, tree, treeTTL(mode)); sErr != nil {
		ts.log.Warn("tree cache write failed", "key", key, "error", sErr)
	}
	return tree, nil
}

// virtualNodeID derives a stable id for a rank value, e.g.
// "family_Felidae" or "order_New_World_Monkeys".
func virtualNodeID(rank, value string) string {
	return rank + "_" + strings.ReplaceAll(value, " ", "_")
}

// builderNode is the intermediate hierarchy node before layout.
type builderNode struct {
	node     TreeNode
	children []*builderNode
	byName   map[string]*builderNode
}

func newBuilderNode(node TreeNode) *builderNode {
	return &builderNode{node: node, byName: map[string]*builderNode{}}
}

func (ts *treeService) buildTree(ctx context.Context, viewerID uuid.UUID, mode string, scoped []uuid.UUID) (*TreeData, error) {
	var captures []*repos.ScopedCapture
	var err error
	if mode == TreeModeGlobal {
		captures, err = ts.entryRepo.ScopedCapturesGlobal(ctx, nil)
	} else {
		captures, err = ts.entryRepo.ScopedCaptures(ctx, nil, scoped)
	}
	if err != nil {
		return nil, err
	}

	animalIDs := make([]uuid.UUID, 0, len(captures))
	seen := map[uuid.UUID]struct{}{}
	for _, c := range captures {
		if _, ok := seen[c.AnimalID]; !ok {
			seen[c.AnimalID] = struct{}{}
			animalIDs = append(animalIDs, c.AnimalID)
		}
	}
	animals, err := ts.animalRepo.GetByIDs(ctx, nil, animalIDs)
	if err != nil {
		return nil, err
	}

	users, err := ts.userRepo.GetByIDs(ctx, nil, scoped)
	if err != nil {
		return nil, err
	}
	usernames := make(map[uuid.UUID]string, len(users))
	for _, u := range users {
		usernames[u.ID] = u.Username
	}

	capturesByAnimal := map[uuid.UUID][]*repos.ScopedCapture{}
	for _, c := range captures {
		capturesByAnimal[c.AnimalID] = append(capturesByAnimal[c.AnimalID], c)
	}

	root := newBuilderNode(TreeNode{ID: "root_Life", Name: "Life", Rank: "root"})
	for _, animal := range animals {
		ts.attachAnimal(root, animal, viewerID, usernames, capturesByAnimal[animal.ID])
	}
	annotateCounts(root)

	// Flatten to render lists and the layout tree in one walk.
	var nodes []TreeNode
	var edges []layout.Edge
	layoutRoot := flatten(root, &nodes, &edges)

	positions := layout.Compute(layoutRoot)
	nodeIDs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}
	chunkIndex := ts.chunks.GenerateIndex(nodeIDs, edges, positions)

	return &TreeData{
		Mode:       mode,
		Nodes:      nodes,
		Edges:      edges,
		Positions:  positions,
		ChunkIndex: chunkIndex,
		Stats: TreeStats{
			TotalNodes:  len(nodes),
			TotalEdges:  len(edges),
			AnimalCount: len(animals),
			UserCount:   len(scoped),
		},
		GeneratedAt: time.Now(),
	}, nil
}

// attachAnimal walks the rank path for one animal, creating virtual
// nodes as needed, and hangs the animal leaf off the lowest non-empty
// rank node.
func (ts *treeService) attachAnimal(root *builderNode, animal *types.Animal, viewerID uuid.UUID, usernames map[uuid.UUID]string, captures []*repos.ScopedCapture) {
	values := []string{
		animal.Kingdom,
		animal.Phylum,
		animal.Class,
		animal.TaxonomicOrder,
		animal.Family,
		animal.Genus,
		animal.Species,
	}

	current := root
	for i, rank := range treeRanks {
		value := strings.TrimSpace(values[i])
		if value == "" {
			continue
		}
		id := virtualNodeID(rank, value)
		child, ok := current.byName[id]
		if !ok {
			child = newBuilderNode(TreeNode{ID: id, Name: value, Rank: rank})
			current.byName[id] = child
			current.children = append(current.children, child)
		}
		current = child
	}

	leaf := TreeNode{
		ID:         animal.ID.String(),
		Name:       animal.ScientificName,
		Rank:       "animal",
		AnimalID:   &animal.ID,
		CommonName: animal.CommonName,
	}
	for _, c := range captures {
		leaf.CaptureCount += c.Captures
		if c.OwnerID == viewerID {
			leaf.CapturedByViewer = true
			continue
		}
		leaf.CapturedByFriends = append(leaf.CapturedByFriends, FriendCapture{
			UserID:     c.OwnerID,
			Username:   usernames[c.OwnerID],
			CapturedAt: c.FirstCatch,
		})
	}
	current.children = append(current.children, newBuilderNode(leaf))
}

// annotateCounts fills children_count (direct) and animal_count
// (subtree) on taxonomic nodes. Returns the subtree animal total.
func annotateCounts(n *builderNode) int {
	if n.node.AnimalID != nil {
		return 1
	}
	total := 0
	for _, child := range n.children {
		total += annotateCounts(child)
	}
	n.node.ChildrenCount = len(n.children)
	n.node.AnimalCount = total
	return total
}

// flatten emits render nodes and parent-child edges while building the
// layout tree with the same ids.
func flatten(n *builderNode, nodes *[]TreeNode, edges *[]layout.Edge) *layout.Node {
	*nodes = append(*nodes, n.node)
	ln := &layout.Node{ID: n.node.ID, Rank: n.node.Rank, Name: n.node.Name}
	for _, child := range n.children {
		*edges = append(*edges, layout.Edge{Source: n.node.ID, Target: child.node.ID})
		ln.Children = append(ln.Children, flatten(child, nodes, edges))
	}
	return ln
}

func (ts *treeService) GetChunk(ctx context.Context, viewerID uuid.UUID, isAdmin bool, mode string, scopeIDs []uuid.UUID, x, y int) (*TreeChunk, error) {
	scoped, err := ts.scopedUsers(ctx, viewerID, isAdmin, mode, scopeIDs)
	if err != nil {
		return nil, err
	}

	treeKey := ts.cacheKey(mode, viewerID, scoped)
	chunkKey := redis.ChunkKey(treeKey, x, y)
	var cached TreeChunk
	if cErr := ts.cache.Get(ctx, chunkKey, &cached); cErr == nil {
		return &cached, nil
	} else if !errors.Is(cErr, redis.ErrCacheMiss) {
		ts.log.Warn("chunk cache read failed", "key", chunkKey, "error", cErr)
	}

	tree, err := ts.GetTree(ctx, viewerID, isAdmin, mode, scopeIDs)
	if err != nil {
		return nil, err
	}

	coord := layout.ChunkCoord{X: x, Y: y}
	nodeIDs := make([]string, 0, len(tree.Nodes))
	byID := make(map[string]TreeNode, len(tree.Nodes))
	for _, n := range tree.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
		byID[n.ID] = n
	}
	chunkNodeIDs, chunkEdges := ts.chunks.FilterChunk(coord, nodeIDs, tree.Edges, tree.Positions)

	chunk := &TreeChunk{
		ChunkX:    x,
		ChunkY:    y,
		Positions: map[string]layout.Position{},
	}
	for _, id := range chunkNodeIDs {
		chunk.Nodes = append(chunk.Nodes, byID[id])
		chunk.Positions[id] = tree.Positions[id]
	}
	chunk.Edges = chunkEdges
	chunk.NodeCount = len(chunk.Nodes)
	chunk.EdgeCount = len(chunk.Edges)

	if sErr := ts.cache.Set(ctx, chunkKey, chunk, treeTTL(mode)); sErr != nil {
		ts.log.Warn("chunk cache write failed", "key", chunkKey, "error", sErr)
	}
	return chunk, nil
}

// Invalidate drops the viewer's cached trees; global additionally
// flushes the shared global tree and requires admin.
func (ts *treeService) Invalidate(ctx context.Context, viewerID uuid.UUID, isAdmin bool, global bool) error {
	for _, mode := range []string{TreeModePersonal, TreeModeFriends} {
		if err := ts.cache.DeleteByPrefix(ctx, redis.TreeUserPrefix(mode, viewerID)); err != nil {
			return err
		}
	}
	if err := ts.cache.DeleteByPrefix(ctx, "tree:selected:"); err != nil {
		return err
	}
	if global {
		if !isAdmin {
			return ErrGlobalTreeForbidden
		}
		if err := ts.cache.DeleteByPrefix(ctx, redis.TreeGlobalKey()); err != nil {
			return err
		}
	}
	return nil
}
