package producers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicConfigFor(t *testing.T) {
	tests := []struct {
		name            string
		partitions      int
		replication     int
		wantPartitions  int
		wantReplication int
	}{
		{name: "explicit values", partitions: 6, replication: 3, wantPartitions: 6, wantReplication: 3},
		{name: "zero values default to one", partitions: 0, replication: 0, wantPartitions: 1, wantReplication: 1},
		{name: "negative values default to one", partitions: -1, replication: -2, wantPartitions: 1, wantReplication: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := topicConfigFor("escrow_events", tt.partitions, tt.replication)
			assert.Equal(t, "escrow_events", cfg.Topic)
			assert.Equal(t, tt.wantPartitions, cfg.NumPartitions)
			assert.Equal(t, tt.wantReplication, cfg.ReplicationFactor)
		})
	}
}
