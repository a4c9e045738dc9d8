package catalog

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chunkdrive/chunkdrive/internal/locator"
)

// NodeType distinguishes folders from files in the tree collection.
type NodeType string

// Node types.
const (
	TypeFolder NodeType = "folder"
	TypeFile   NodeType = "file"
)

// Kind mirrors details.kind: folder=1, file=2 per spec.
const (
	KindFolder = 1
	KindFile   = 2
)

// Access holds the advisory permission bits for a Node.
type Access struct {
	Group       string   `bson:"group"`
	User        string   `bson:"user"`
	Permissions []string `bson:"permissions"`
}

// DefaultAccess is used for newly created nodes (root=staff/root, all rwx).
func DefaultAccess() Access {
	return Access{
		Group: "staff",
		User:  "root",
		Permissions: []string{
			"g_r", "g_w", "g_x",
			"u_r", "u_w", "u_x",
			"o_r", "o_w", "o_x",
		},
	}
}

// Details holds the timestamped size/kind metadata for a Node.
type Details struct {
	Accessed        int64 `bson:"accessed"`
	Created         int64 `bson:"created"`
	MetadataChanged int64 `bson:"metadata_changed"`
	Modified        int64 `bson:"modified"`
	Size            int64 `bson:"size"`
	Kind            int   `bson:"kind"`
}

// Node is a single row in the `tree` collection: either a folder or a file.
type Node struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty"`
	Parent     *primitive.ObjectID  `bson:"parent"`
	Name       string               `bson:"name"`
	Type       NodeType             `bson:"type"`
	URLs       []locator.SaveFormat `bson:"urls,omitempty"`
	ChunkSizes []int64              `bson:"chunk_sizes,omitempty"`
	Access     Access               `bson:"access"`
	Details    Details              `bson:"details"`
}

// IsFolder reports whether n is a folder node.
func (n Node) IsFolder() bool { return n.Type == TypeFolder }

// IsFile reports whether n is a file node.
func (n Node) IsFile() bool { return n.Type == TypeFile }
