package link

import "sync"

// waiterMap tracks pending commands by sequence number. The value
// channel carries the Ack/Nack outcome: ErrCodeNone means Ack.
type waiterMap struct {
	mu sync.Mutex
	m  map[uint8]chan ErrorCode
}

func (wm *waiterMap) NewWaiter(seq uint8) chan ErrorCode {
	ch := make(chan ErrorCode, 1)
	wm.mu.Lock()
	if wm.m == nil {
		wm.m = make(map[uint8]chan ErrorCode)
	}
	wm.m[seq] = ch
	wm.mu.Unlock()
	return ch
}

func (wm *waiterMap) Delete(seq uint8) {
	wm.mu.Lock()
	delete(wm.m, seq)
	wm.mu.Unlock()
}

func (wm *waiterMap) LoadAndDelete(seq uint8) (chan ErrorCode, bool) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	ch, ok := wm.m[seq]
	if ok {
		delete(wm.m, seq)
	}
	return ch, ok
}
