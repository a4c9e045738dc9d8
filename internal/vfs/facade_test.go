package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/chunkdrive/chunkdrive/internal/catalog"
)

func newTestFacade(mt *mtest.T, rootID primitive.ObjectID) *FS {
	cat := catalog.FromCollection(mt.Coll, rootID)
	return New(cat, nil)
}

func TestGetInfoReturnsResourceNotFoundForMissingPath(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("missing", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chunkdrive.tree", mtest.FirstBatch))

		_, err := f.GetInfo(context.Background(), "/missing.bin")
		assert.ErrorIs(t, err, ErrResourceNotFound)
	})
}

func TestGetInfoReturnsNodeView(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("hit", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		doc := bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "parent", Value: rootID},
			{Key: "name", Value: "video.bin"},
			{Key: "type", Value: "file"},
			{Key: "access", Value: bson.D{}},
			{Key: "details", Value: bson.D{{Key: "size", Value: int64(42)}}},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, doc))

		info, err := f.GetInfo(context.Background(), "/video.bin")
		require.NoError(t, err)
		assert.Equal(t, "video.bin", info.Name)
		assert.False(t, info.IsDir)
		assert.Equal(t, int64(42), info.Size)
	})
}

func TestListDirRejectsFileTarget(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("not-a-dir", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		doc := bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "parent", Value: rootID},
			{Key: "name", Value: "video.bin"},
			{Key: "type", Value: "file"},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, doc))

		_, err := f.ListDir(context.Background(), "/video.bin")
		assert.ErrorIs(t, err, ErrDirectoryExpected)
	})
}

func TestMakeDirReportsAlreadyExistsAsDirectoryExists(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("exists", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		doc := bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "parent", Value: rootID},
			{Key: "name", Value: "movies"},
			{Key: "type", Value: "folder"},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, doc))

		err := f.MakeDir(context.Background(), "/movies", false)
		assert.ErrorIs(t, err, ErrDirectoryExists)
	})
}

func TestOpenBinRejectsNonPrintablePathBeforeAnyLookup(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("bad-path", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		_, err := f.OpenBin(context.Background(), "/bad\x07name.bin", "rb")
		assert.ErrorIs(t, err, ErrInvalidCharsInPath)
	})
}

func TestOpenBinExclusiveFailsWhenFileAlreadyExists(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("exclusive", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		doc := bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "parent", Value: rootID},
			{Key: "name", Value: "video.bin"},
			{Key: "type", Value: "file"},
			{Key: "details", Value: bson.D{{Key: "size", Value: int64(10)}}},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, doc))

		_, err := f.OpenBin(context.Background(), "/video.bin", "xb")
		assert.ErrorIs(t, err, ErrFileExists)
	})
}

func TestOpenBinReadFailsWhenMissing(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("missing-read", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chunkdrive.tree", mtest.FirstBatch))

		_, err := f.OpenBin(context.Background(), "/missing.bin", "rb")
		assert.ErrorIs(t, err, ErrResourceNotFound)
	})
}

func TestOpenBinWriteOnMissingPathCreatesEmptyWritableHandle(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("create", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chunkdrive.tree", mtest.FirstBatch))

		h, err := f.OpenBin(context.Background(), "/new.bin", "wb")
		require.NoError(t, err)
		assert.True(t, h.writable)
		assert.False(t, h.readable)
		assert.Empty(t, h.data)
	})
}

func TestRemoveDirRejectsRootWithoutAnyLookup(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("root", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		err := f.RemoveDir(context.Background(), "/")
		assert.ErrorIs(t, err, ErrRemoveRoot)
	})
}

func TestRemoveMapsWrongKindToFileExpected(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("folder", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		doc := bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "parent", Value: rootID},
			{Key: "name", Value: "movies"},
			{Key: "type", Value: "folder"},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, doc))

		err := f.Remove(context.Background(), "/movies")
		assert.ErrorIs(t, err, ErrFileExpected)
	})
}

func TestMoveMapsAlreadyExistsToFileExists(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("collision", func(mt *mtest.T) {
		rootID := primitive.NewObjectID()
		f := newTestFacade(mt, rootID)

		srcDoc := bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "parent", Value: rootID},
			{Key: "name", Value: "a.bin"},
			{Key: "type", Value: "file"},
		}
		rootDoc := bson.D{
			{Key: "_id", Value: rootID},
			{Key: "parent", Value: nil},
			{Key: "name", Value: ""},
			{Key: "type", Value: "folder"},
		}
		dstDoc := bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "parent", Value: rootID},
			{Key: "name", Value: "b.bin"},
			{Key: "type", Value: "file"},
		}
		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, srcDoc),
			mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, rootDoc),
			mtest.CreateCursorResponse(1, "chunkdrive.tree", mtest.FirstBatch, dstDoc),
		)

		err := f.Move(context.Background(), "/a.bin", "/b.bin", false, true, false)
		assert.ErrorIs(t, err, ErrFileExists)
	})
}
