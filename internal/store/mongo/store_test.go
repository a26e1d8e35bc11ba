package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/JakeFAU/realtime-cpi-scraper/internal/scrape"
)

func TestDatabaseName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		uri      string
		fallback string
		want     string
		wantErr  bool
	}{
		{name: "from uri", uri: "mongodb://127.0.0.1:27017/fooddb", fallback: "other", want: "fooddb"},
		{name: "fallback", uri: "mongodb://127.0.0.1:27017", fallback: "scraper", want: "scraper"},
		{name: "no database", uri: "mongodb://127.0.0.1:27017/", wantErr: true},
		{name: "invalid uri", uri: "postgres://localhost", fallback: "x", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DatabaseName(tt.uri, tt.fallback)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNewConnectorDefaults(t *testing.T) {
	t.Parallel()

	c := NewConnector(Config{}, nil)
	require.Equal(t, defaultConnectTimeout, c.cfg.ConnectTimeout)
	require.Equal(t, defaultOpTimeout, c.cfg.OpTimeout)
}

func TestConnectRejectsBadURI(t *testing.T) {
	t.Parallel()

	_, err := NewConnector(Config{}, nil).Connect(context.Background(), "not-a-uri")
	require.Error(t, err)
}

func TestSessionInsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		name := "Organic Rice, 2kg"
		sess := NewSession(mt.DB, time.Second)

		err := sess.Insert(context.Background(), "products", scrape.ProductRecord{Name: &name})
		require.NoError(mt, err)
		require.NoError(mt, sess.Close(context.Background()))
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		sess := NewSession(mt.DB, time.Second)

		err := sess.Insert(context.Background(), "products", scrape.ProductRecord{})
		require.Error(mt, err)
		require.Contains(mt, err.Error(), "duplicate key")
	})
}

func TestProductRecordMarshalsNilAsNull(t *testing.T) {
	t.Parallel()

	name := "Organic Rice, 2kg"
	raw, err := bson.Marshal(scrape.ProductRecord{Name: &name})
	require.NoError(t, err)

	doc := bson.Raw(raw)
	require.Equal(t, name, doc.Lookup("name").StringValue())
	for _, key := range []string{"weight", "price", "ingredients", "nutrition", "about", "image", "vegetarian"} {
		require.Equal(t, bson.TypeNull, doc.Lookup(key).Type, key)
	}
}
