package amqp

import (
	"encoding/json"
	"time"
)

// ExtractionJob asks the worker to run field extraction for one
// uploaded file. It carries identifiers only; the worker loads the
// invoice and the document itself from storage.
type ExtractionJob struct {
	InvoiceID string    `json:"invoice_id"`
	FileID    string    `json:"file_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExtractionJob(invoiceID, fileID string) *ExtractionJob {
	return &ExtractionJob{
		InvoiceID: invoiceID,
		FileID:    fileID,
		Timestamp: time.Now(),
	}
}

func (j *ExtractionJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

func ExtractionJobFromJSON(data []byte) (*ExtractionJob, error) {
	var job ExtractionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
