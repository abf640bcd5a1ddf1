package broadcast

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub(10)
	var chans []<-chan []byte
	for i := 0; i < 3; i++ {
		ch, cancel := h.Subscribe()
		defer cancel()
		chans = append(chans, ch)
	}
	h.Broadcast([]byte("one"))
	h.Broadcast([]byte("two"))
	for _, ch := range chans {
		assert.Equal(t, "one", string(<-ch))
		assert.Equal(t, "two", string(<-ch))
	}
}

func TestHub_NoClients(t *testing.T) {
	h := NewHub(10)
	h.Broadcast([]byte("olia"))
	assert.Equal(t, 0, h.Count())
}

func TestHub_Cancel(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Count())
	cancel()
	cancel()
	assert.Equal(t, 0, h.Count())
}

func TestHub_DropsOldest(t *testing.T) {
	h := NewHub(2)
	ch, cancel := h.Subscribe()
	defer cancel()
	for i := 0; i < 5; i++ {
		h.Broadcast([]byte(fmt.Sprintf("m%d", i)))
	}
	assert.Equal(t, "m3", string(<-ch))
	assert.Equal(t, "m4", string(<-ch))
	select {
	case msg := <-ch:
		t.Errorf("unexpected msg %s", string(msg))
	default:
	}
}

func TestHub_BroadcastJSON(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()
	h.BroadcastJSON(ProgressEvent{Step: StepTranscribe, Status: StatusStarted, Message: "olia", FileID: "f1"})
	var got ProgressEvent
	require.Nil(t, json.Unmarshal(<-ch, &got))
	assert.Equal(t, StepTranscribe, got.Step)
	assert.Equal(t, StatusStarted, got.Status)
	assert.Equal(t, "f1", got.FileID)
}
