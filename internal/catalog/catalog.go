// Package catalog persists the directory tree, per-file metadata, and
// ordered chunk locator lists in a MongoDB-backed document store, and
// resolves/mutates that tree on behalf of the Filesystem Facade.
package catalog

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chunkdrive/chunkdrive/internal/locator"
)

// Status codes returned by Catalog operations, per spec §4.5.
const (
	StatusOK               = 0
	StatusNotFound         = 1
	StatusWrongKind        = 2
	StatusAlreadyExists    = 3 // also used for NotEmpty-at-destination
	StatusCannotRemoveRoot = 4
)

const collectionName = "tree"

// Catalog is the Mongo-backed tree of directory and file nodes.
type Catalog struct {
	coll   *mongo.Collection
	rootID primitive.ObjectID
}

// FromCollection builds a Catalog around an already-open collection handle
// and a known root id, skipping Open's bootstrap. Useful when the caller
// already manages the Mongo client lifecycle (or, in tests, a mocked one).
func FromCollection(coll *mongo.Collection, rootID primitive.ObjectID) *Catalog {
	return &Catalog{coll: coll, rootID: rootID}
}

// Open connects the Catalog to the `tree` collection of database dbName,
// creating the root node and the `parent` index if they don't exist yet.
func Open(ctx context.Context, client *mongo.Client, dbName string) (*Catalog, error) {
	coll := client.Database(dbName).Collection(collectionName)

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}},
	})
	if err != nil {
		return nil, err
	}

	var root Node
	err = coll.FindOne(ctx, bson.M{"name": "", "parent": nil}).Decode(&root)
	if err == mongo.ErrNoDocuments {
		now := nowUnix()
		root = Node{
			Parent: nil,
			Name:   "",
			Type:   TypeFolder,
			Access: DefaultAccess(),
			Details: Details{
				Accessed: now, Created: now, MetadataChanged: now, Modified: now,
				Size: 0, Kind: KindFolder,
			},
		}
		res, insErr := coll.InsertOne(ctx, root)
		if insErr != nil {
			return nil, insErr
		}
		root.ID = res.InsertedID.(primitive.ObjectID)
	} else if err != nil {
		return nil, err
	}

	return &Catalog{coll: coll, rootID: root.ID}, nil
}

func nowUnix() int64 { return time.Now().Unix() }

// RootID returns the id of the unique root node.
func (c *Catalog) RootID() primitive.ObjectID { return c.rootID }

// Resolve walks segments from the root. status=0 on a full hit (node is
// the resolved node); status=1 if only the last segment is missing but
// every prefix exists; status=2 if an intermediate segment is missing.
// On status 1 and 2 node is the zero value.
func (c *Catalog) Resolve(ctx context.Context, segments []string) (status int, node Node, err error) {
	if len(segments) == 0 {
		if err := c.coll.FindOne(ctx, bson.M{"_id": c.rootID}).Decode(&node); err != nil {
			return StatusNotFound, Node{}, err
		}
		return StatusOK, node, nil
	}

	parentID := c.rootID
	var current Node
	for i, seg := range segments {
		err := c.coll.FindOne(ctx, bson.M{"name": seg, "parent": parentID}).Decode(&current)
		if err == mongo.ErrNoDocuments {
			if i == len(segments)-1 {
				return StatusNotFound, Node{}, nil
			}
			return StatusWrongKind, Node{}, nil // intermediate segment missing
		}
		if err != nil {
			return StatusNotFound, Node{}, err
		}
		parentID = current.ID
	}
	return StatusOK, current, nil
}

// resolveID is Resolve but only returning the id, used internally when the
// full Node isn't needed for intermediate segments.
func (c *Catalog) resolveID(ctx context.Context, segments []string) (status int, id primitive.ObjectID, err error) {
	status, node, err := c.Resolve(ctx, segments)
	return status, node.ID, err
}

// Makedirs creates missing directory nodes along segments.
//
//   - allowMany=false: at most one missing segment may be created.
//   - a segment matching an existing non-folder node fails WrongKind.
//   - if every segment already existed and existOk=false, fails
//     AlreadyExists (checked against the leaf only, see DESIGN.md Open
//     Question #3); existOk=true succeeds idempotently.
func (c *Catalog) Makedirs(ctx context.Context, segments []string, allowMany, existOk bool) (status int, parentID primitive.ObjectID, err error) {
	parentID = c.rootID
	leafExisted := false
	missingCount := 0

	for i, seg := range segments {
		var fn Node
		ferr := c.coll.FindOne(ctx, bson.M{"name": seg, "parent": parentID}).Decode(&fn)
		if ferr == nil {
			if fn.Type != TypeFolder {
				return StatusWrongKind, primitive.NilObjectID, nil
			}
			parentID = fn.ID
			if i == len(segments)-1 {
				leafExisted = true
			}
			continue
		}
		if ferr != mongo.ErrNoDocuments {
			return StatusNotFound, primitive.NilObjectID, ferr
		}

		remaining := len(segments) - i
		if !allowMany && remaining > 1 {
			return StatusNotFound, primitive.NilObjectID, nil
		}

		missingCount++
		now := nowUnix()
		newNode := Node{
			Parent: &parentID,
			Name:   seg,
			Type:   TypeFolder,
			Access: DefaultAccess(),
			Details: Details{
				Accessed: now, Created: now, MetadataChanged: now, Modified: now,
				Size: 0, Kind: KindFolder,
			},
		}
		res, insErr := c.coll.InsertOne(ctx, newNode)
		if insErr != nil {
			return StatusNotFound, primitive.NilObjectID, insErr
		}
		parentID = res.InsertedID.(primitive.ObjectID)
	}

	if !existOk && leafExisted && missingCount == 0 {
		return StatusAlreadyExists, primitive.NilObjectID, nil
	}
	return StatusOK, parentID, nil
}

// List returns all direct children of parentID.
func (c *Catalog) List(ctx context.Context, parentID primitive.ObjectID) ([]Node, error) {
	cur, err := c.coll.Find(ctx, bson.M{"parent": parentID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var nodes []Node
	if err := cur.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetInfo resolves segments and returns the node's access/details/basic
// view (basic view is derived by the caller from Node fields directly).
func (c *Catalog) GetInfo(ctx context.Context, segments []string) (status int, node Node, err error) {
	return c.Resolve(ctx, segments)
}

// SetInfoUpdate carries the partial updates set_info may apply. Per
// DESIGN.md Open Question #1, Details merges against the prior Details
// (not Access); Access merges against the prior Access.
type SetInfoUpdate struct {
	Access  *Access
	Details *Details
	Name    *string
	IsDir   *bool
}

// SetInfo merges upd into the node resolved by segments.
func (c *Catalog) SetInfo(ctx context.Context, segments []string, upd SetInfoUpdate) (status int, err error) {
	status, node, err := c.Resolve(ctx, segments)
	if err != nil {
		return StatusNotFound, err
	}
	if status != StatusOK {
		return StatusNotFound, nil
	}

	set := bson.M{}
	if upd.Access != nil {
		set["access"] = mergeAccess(node.Access, *upd.Access)
	}
	if upd.Details != nil {
		set["details"] = mergeDetails(node.Details, *upd.Details)
	}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.IsDir != nil {
		if *upd.IsDir {
			set["type"] = TypeFolder
		} else {
			set["type"] = TypeFile
		}
	}
	if len(set) == 0 {
		return StatusOK, nil
	}

	_, err = c.coll.UpdateOne(ctx, bson.M{"_id": node.ID}, bson.M{"$set": set})
	if err != nil {
		return StatusNotFound, err
	}
	return StatusOK, nil
}

func mergeAccess(prior, patch Access) Access {
	out := prior
	if patch.Group != "" {
		out.Group = patch.Group
	}
	if patch.User != "" {
		out.User = patch.User
	}
	if patch.Permissions != nil {
		out.Permissions = patch.Permissions
	}
	return out
}

func mergeDetails(prior, patch Details) Details {
	out := prior
	if patch.Accessed != 0 {
		out.Accessed = patch.Accessed
	}
	if patch.Created != 0 {
		out.Created = patch.Created
	}
	if patch.MetadataChanged != 0 {
		out.MetadataChanged = patch.MetadataChanged
	}
	if patch.Modified != 0 {
		out.Modified = patch.Modified
	}
	if patch.Size != 0 {
		out.Size = patch.Size
	}
	if patch.Kind != 0 {
		out.Kind = patch.Kind
	}
	return out
}

// RemoveFile deletes the file node at segments.
func (c *Catalog) RemoveFile(ctx context.Context, segments []string) (status int, err error) {
	status, node, err := c.Resolve(ctx, segments)
	if err != nil {
		return StatusNotFound, err
	}
	if status != StatusOK {
		return StatusNotFound, nil
	}
	if node.Type != TypeFile {
		return StatusWrongKind, nil
	}
	_, err = c.coll.DeleteOne(ctx, bson.M{"_id": node.ID})
	return StatusOK, err
}

// RemoveDir deletes the (empty) folder node at segments.
func (c *Catalog) RemoveDir(ctx context.Context, segments []string) (status int, err error) {
	if len(segments) == 0 {
		return StatusCannotRemoveRoot, nil
	}
	status, node, err := c.Resolve(ctx, segments)
	if err != nil {
		return StatusNotFound, err
	}
	if status != StatusOK {
		return StatusNotFound, nil
	}
	if node.Type != TypeFolder {
		return StatusWrongKind, nil
	}
	children, err := c.List(ctx, node.ID)
	if err != nil {
		return StatusNotFound, err
	}
	if len(children) > 0 {
		return StatusAlreadyExists, nil // NotEmpty shares the AlreadyExists code per spec
	}
	_, err = c.coll.DeleteOne(ctx, bson.M{"_id": node.ID})
	return StatusOK, err
}

// RemoveTree recursively deletes every descendant file and folder under
// segments, then the node itself, post-order. This resolves spec.md's
// Open Question on remove_tree semantics (see DESIGN.md).
func (c *Catalog) RemoveTree(ctx context.Context, segments []string) (status int, err error) {
	if len(segments) == 0 {
		return StatusCannotRemoveRoot, nil
	}
	status, node, err := c.Resolve(ctx, segments)
	if err != nil {
		return StatusNotFound, err
	}
	if status != StatusOK {
		return StatusNotFound, nil
	}
	if err := c.deleteSubtree(ctx, node); err != nil {
		return StatusNotFound, err
	}
	return StatusOK, nil
}

func (c *Catalog) deleteSubtree(ctx context.Context, node Node) error {
	if node.Type == TypeFolder {
		children, err := c.List(ctx, node.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := c.deleteSubtree(ctx, child); err != nil {
				return err
			}
		}
	}
	_, err := c.coll.DeleteOne(ctx, bson.M{"_id": node.ID})
	return err
}

// Rename moves a file node from srcSegments to dstSegments. Refuses to
// move a folder. May overwrite an existing file destination, and may
// create intermediate destination directories.
func (c *Catalog) Rename(ctx context.Context, srcSegments, dstSegments []string, overwrite, createDirs, preserveTimestamps bool) (status int, err error) {
	if len(srcSegments) == 0 || len(dstSegments) == 0 {
		return StatusWrongKind, nil
	}

	status, src, err := c.Resolve(ctx, srcSegments)
	if err != nil {
		return StatusNotFound, err
	}
	if status != StatusOK {
		return StatusNotFound, nil
	}
	if src.Type != TypeFile {
		return StatusWrongKind, nil
	}

	dstParentSegs := dstSegments[:len(dstSegments)-1]
	dstParentStatus, dstParentID, err := c.resolveID(ctx, dstParentSegs)
	if err != nil {
		return StatusNotFound, err
	}
	if dstParentStatus != StatusOK {
		if createDirs {
			mkStatus, pid, mkErr := c.Makedirs(ctx, dstParentSegs, true, true)
			if mkErr != nil {
				return StatusNotFound, mkErr
			}
			if mkStatus != StatusOK {
				return StatusNotFound, nil
			}
			dstParentID = pid
		} else {
			return StatusNotFound, nil
		}
	}

	leafName := dstSegments[len(dstSegments)-1]
	var dst Node
	dstErr := c.coll.FindOne(ctx, bson.M{"name": leafName, "parent": dstParentID}).Decode(&dst)
	if dstErr == nil {
		if !overwrite {
			return StatusAlreadyExists, nil
		}
		if dst.Type != TypeFile {
			return StatusWrongKind, nil
		}
		if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": dst.ID}); err != nil {
			return StatusNotFound, err
		}
	} else if dstErr != mongo.ErrNoDocuments {
		return StatusNotFound, dstErr
	}

	set := bson.M{"name": leafName, "parent": dstParentID}
	if !preserveTimestamps {
		set["details.modified"] = nowUnix()
	}
	if _, err := c.coll.UpdateOne(ctx, bson.M{"_id": src.ID}, bson.M{"$set": set}); err != nil {
		return StatusNotFound, err
	}
	return StatusOK, nil
}

// Copy duplicates the file node at srcSegments (urls, chunk_sizes, access,
// details included) to dstSegments.
func (c *Catalog) Copy(ctx context.Context, srcSegments, dstSegments []string, overwrite, createDirs, preserveTimestamps bool) (status int, err error) {
	if len(dstSegments) == 0 {
		return StatusWrongKind, nil
	}

	status, src, err := c.Resolve(ctx, srcSegments)
	if err != nil {
		return StatusNotFound, err
	}
	if status != StatusOK {
		return StatusNotFound, nil
	}
	if src.Type != TypeFile {
		return StatusWrongKind, nil
	}

	dstParentSegs := dstSegments[:len(dstSegments)-1]
	dstParentStatus, dstParentID, err := c.resolveID(ctx, dstParentSegs)
	if err != nil {
		return StatusNotFound, err
	}
	if dstParentStatus != StatusOK {
		if createDirs {
			mkStatus, pid, mkErr := c.Makedirs(ctx, dstParentSegs, true, true)
			if mkErr != nil {
				return StatusNotFound, mkErr
			}
			if mkStatus != StatusOK {
				return StatusNotFound, nil
			}
			dstParentID = pid
		} else {
			return StatusNotFound, nil
		}
	}

	leafName := dstSegments[len(dstSegments)-1]
	var dst Node
	dstErr := c.coll.FindOne(ctx, bson.M{"name": leafName, "parent": dstParentID}).Decode(&dst)
	if dstErr == nil {
		if !overwrite {
			return StatusAlreadyExists, nil
		}
		if dst.Type != TypeFile {
			return StatusWrongKind, nil
		}
		if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": dst.ID}); err != nil {
			return StatusNotFound, err
		}
	} else if dstErr != mongo.ErrNoDocuments {
		return StatusNotFound, dstErr
	}

	newNode := Node{
		Parent:     &dstParentID,
		Name:       leafName,
		Type:       src.Type,
		URLs:       append([]locator.SaveFormat{}, src.URLs...),
		ChunkSizes: append([]int64{}, src.ChunkSizes...),
		Access:     src.Access,
		Details:    src.Details,
	}
	if _, err := c.coll.InsertOne(ctx, newNode); err != nil {
		return StatusNotFound, err
	}

	if !preserveTimestamps {
		_, err := c.coll.UpdateOne(ctx, bson.M{"_id": src.ID}, bson.M{"$set": bson.M{"details.modified": nowUnix()}})
		if err != nil {
			return StatusNotFound, err
		}
	}
	return StatusOK, nil
}

// CommitFile inserts or updates a file node after a successful upload.
// If an existing node at (parentID, leafName) is a folder, aborts with
// StatusWrongKind without touching it.
func (c *Catalog) CommitFile(ctx context.Context, parentID primitive.ObjectID, leafName string, urls []locator.SaveFormat, chunkSizes []int64, logicalSize int64) (status int, err error) {
	var existing Node
	findErr := c.coll.FindOne(ctx, bson.M{"name": leafName, "parent": parentID}).Decode(&existing)
	switch {
	case findErr == nil:
		if existing.Type != TypeFile {
			return StatusWrongKind, nil
		}
		_, err = c.coll.UpdateOne(ctx, bson.M{"_id": existing.ID}, bson.M{"$set": bson.M{
			"urls":            urls,
			"chunk_sizes":     chunkSizes,
			"details.modified": nowUnix(),
			"details.size":    logicalSize,
		}})
		return StatusOK, err
	case findErr == mongo.ErrNoDocuments:
		now := nowUnix()
		newNode := Node{
			Parent:     &parentID,
			Name:       leafName,
			Type:       TypeFile,
			URLs:       urls,
			ChunkSizes: chunkSizes,
			Access:     DefaultAccess(),
			Details: Details{
				Accessed: now, Created: now, MetadataChanged: now, Modified: now,
				Size: logicalSize, Kind: KindFile,
			},
		}
		_, err = c.coll.InsertOne(ctx, newNode)
		return StatusOK, err
	default:
		return StatusNotFound, findErr
	}
}

// DumpAll returns every node in the tree, for the backup CLI.
func (c *Catalog) DumpAll(ctx context.Context) ([]Node, error) {
	cur, err := c.coll.Find(ctx, bson.M{}, options.Find())
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var nodes []Node
	if err := cur.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// LoadAll replaces the tree collection's contents with nodes, for the
// backup CLI's restore path.
func (c *Catalog) LoadAll(ctx context.Context, nodes []Node) error {
	if _, err := c.coll.DeleteMany(ctx, bson.M{}); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	docs := make([]any, len(nodes))
	for i, n := range nodes {
		docs[i] = n
	}
	_, err := c.coll.InsertMany(ctx, docs)
	return err
}
