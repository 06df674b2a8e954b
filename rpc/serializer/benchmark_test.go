package serializer

import (
	"fmt"
	"sort"
	"testing"

	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/tree"
	"github.com/ValentinKolb/dStats/lib/values"
	"github.com/ValentinKolb/dStats/rpc/common"
)

// syncPayload encodes a sync message with roots*leaves counters on a
// service/endpoint/status schema, the way a collector would send it.
func syncPayload(b *testing.B, roots, leaves int) []byte {
	b.Helper()
	data := make(map[string]*tree.Node, roots)
	for r := 0; r < roots; r++ {
		root := tree.NewNode()
		for l := 0; l < leaves; l++ {
			path := []string{fmt.Sprintf("/v1/resource/%d", l), "200"}
			if err := tree.Update(root, path, values.Increment("hits", int64(l+1)), values.Factory(true)); err != nil {
				b.Fatal(err)
			}
			if err := tree.Update(root, path[:1], values.Increment("hits", 0), values.Factory(false)); err != nil {
				b.Fatal(err)
			}
		}
		data[fmt.Sprintf("service-%d", r)] = root
	}
	enc, err := statsdb.EncodeSync(values.NewCodec(), &statsdb.Sync{ID: 1712345678901, Data: data})
	if err != nil {
		b.Fatal(err)
	}
	return enc
}

func benchmarkMessages(b *testing.B) map[string]common.Message {
	host := "3f2c1b7e-5f61-4c1e-9a53-2d1f0b8e7c44"
	return map[string]common.Message{
		"Ack":          *common.NewSyncResponse(uint8(statsdb.AckApplied), nil),
		"Get":          *common.NewGetRequest([]string{"checkout", "/v1/cart/{id}", "200"}),
		"SchemaResp":   *common.NewGetSchemaResponse([]string{"service", "endpoint", "status"}, nil),
		"SyncSmall":    *common.NewSyncRequest(host, 1712345678901, syncPayload(b, 1, 4)),
		"SyncLarge":    *common.NewSyncRequest(host, 1712345678901, syncPayload(b, 16, 64)),
		"ErrorMessage": *common.NewErrorResponse("schema mismatch: path [a b c d] is deeper than [service endpoint status]"),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BenchmarkSerializers measures encoding, decoding and the encoded size of
// every serializer for typical collector and master messages.
func BenchmarkSerializers(b *testing.B) {
	messages := benchmarkMessages(b)

	for _, name := range sortedKeys(testSerializers) {
		s := testSerializers[name]()
		for _, msgName := range sortedKeys(messages) {
			msg := messages[msgName]
			data, err := s.Serialize(msg)
			if err != nil {
				b.Fatalf("%s failed to serialize %s: %v", name, msgName, err)
			}

			b.Run(name+"/"+msgName+"/Serialize", func(b *testing.B) {
				b.ReportMetric(float64(len(data)), "bytes")
				for i := 0; i < b.N; i++ {
					if _, err := s.Serialize(msg); err != nil {
						b.Fatal(err)
					}
				}
			})
			b.Run(name+"/"+msgName+"/Deserialize", func(b *testing.B) {
				var out common.Message
				for i := 0; i < b.N; i++ {
					if err := s.Deserialize(data, &out); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
