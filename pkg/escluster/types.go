package escluster

import (
	"encoding/json"
	"fmt"
)

// Bulk operation types.
const (
	OpIndex  = "index"
	OpDelete = "delete"
)

// BulkItem is one operation in a bulk request. Doc is ignored for deletes.
// An empty ID on an index operation lets the cluster assign the document id.
type BulkItem struct {
	OpType  string
	Index   string
	ID      string
	Routing string
	Doc     []byte
}

func (b BulkItem) metaLine() ([]byte, error) {
	if b.OpType != OpIndex && b.OpType != OpDelete {
		return nil, fmt.Errorf("unsupported bulk op type %q", b.OpType)
	}
	meta := map[string]map[string]string{b.OpType: {"_index": b.Index}}
	if b.ID != "" {
		meta[b.OpType]["_id"] = b.ID
	}
	if b.Routing != "" {
		meta[b.OpType]["routing"] = b.Routing
	}
	return json.Marshal(meta)
}

// BulkError is the failure detail of a bulk item.
type BulkError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// BulkItemResult is one entry of a bulk response, flattened from the
// operation-keyed wire shape.
type BulkItemResult struct {
	OpType string
	Index  string
	ID     string
	Status int
	Error  *BulkError
}

// UnmarshalJSON flattens {"index": {...}} / {"delete": {...}} entries.
func (r *BulkItemResult) UnmarshalJSON(data []byte) error {
	var wire map[string]struct {
		Index  string     `json:"_index"`
		ID     string     `json:"_id"`
		Status int        `json:"status"`
		Error  *BulkError `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	for op, body := range wire {
		r.OpType = op
		r.Index = body.Index
		r.ID = body.ID
		r.Status = body.Status
		r.Error = body.Error
		return nil
	}
	return fmt.Errorf("empty bulk item result")
}

// BulkResponse is the parsed bulk API response.
type BulkResponse struct {
	Took   int              `json:"took"`
	Errors bool             `json:"errors"`
	Items  []BulkItemResult `json:"items"`
}

// ShardFailure is one failed shard in a search response.
type ShardFailure struct {
	Shard  int    `json:"shard"`
	Index  string `json:"index"`
	Reason struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"reason"`
}

func (f ShardFailure) Error() string {
	return fmt.Sprintf("shard %d of %s failed: %s: %s", f.Shard, f.Index, f.Reason.Type, f.Reason.Reason)
}

// Hit is one search hit.
type Hit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// SearchResponse is the parsed search API response. Raw retains the full body
// for callers that need the response as a generic map.
type SearchResponse struct {
	Took     int  `json:"took"`
	TimedOut bool `json:"timed_out"`
	Shards   struct {
		Total      int            `json:"total"`
		Successful int            `json:"successful"`
		Failed     int            `json:"failed"`
		Failures   []ShardFailure `json:"failures"`
	} `json:"_shards"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`

	Raw json.RawMessage `json:"-"`
}

// FirstFailure returns the first shard failure, or nil when all shards
// succeeded.
func (r *SearchResponse) FirstFailure() error {
	if r.Shards.Failed == 0 {
		return nil
	}
	if len(r.Shards.Failures) > 0 {
		return r.Shards.Failures[0]
	}
	return fmt.Errorf("%d of %d shards failed", r.Shards.Failed, r.Shards.Total)
}

// AsMap converts the full response body into a nested generic map.
func (r *SearchResponse) AsMap() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(r.Raw, &out); err != nil {
		return nil, fmt.Errorf("convert search response: %w", err)
	}
	return out, nil
}
