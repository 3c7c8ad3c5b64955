package storage

import (
	"encoding/json"
	"fmt"

	"muonfit/internal/ml"

	"go.etcd.io/bbolt"
)

// PutLossHistory stores the per-epoch losses of one training run.
func (s *Store) PutLossHistory(runID string, history []ml.EpochLoss) error {
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("marshal loss history: %w", err)
		}
		return tx.Bucket([]byte(historyBucket)).Put([]byte(runID), data)
	})
}

// LossHistory returns the losses stored for runID, or nil if the run is
// unknown.
func (s *Store) LossHistory(runID string) ([]ml.EpochLoss, error) {
	var history []ml.EpochLoss
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(historyBucket)).Get([]byte(runID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &history)
	})
	return history, err
}

// Runs lists the run ids with a stored loss history.
func (s *Store) Runs() ([]string, error) {
	var runs []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(historyBucket)).ForEach(func(k, _ []byte) error {
			runs = append(runs, string(k))
			return nil
		})
	})
	return runs, err
}
