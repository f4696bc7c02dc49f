package backup

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/gotap/tapd/job"
)

// row is the durable snapshot of one job. Data carries the whole
// job.Job serialized as JSON rather than a column per field: unlike
// store/sql's jobModel, this table exists only to be bulk-dumped and
// bulk-restored, never queried by individual column, so a single JSON
// column is the simpler and sufficient shape.
type row struct {
	bun.BaseModel `bun:"table:jobs_backup"`
	ID            string    `bun:"id,pk"`
	Owner         string    `bun:"owner,notnull,default:''"`
	Data          []byte    `bun:"data,type:jsonb,notnull"`
	SavedAt       time.Time `bun:"saved_at,nullzero,notnull,default:current_timestamp"`
}

func toRow(j *job.Job) (*row, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return &row{ID: j.ID, Owner: j.Owner, Data: data}, nil
}

func (r *row) toJob() (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(r.Data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
