package queue

import "testing"

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Enqueue(i)
	}

	if v, ok := q.Peek(); !ok || v != 1 {
		t.Errorf("Peek = %d,%v, want 1,true", v, ok)
	}
	for want := 1; want <= 3; want++ {
		v, ok := q.Dequeue()
		if !ok || v != want {
			t.Errorf("Dequeue = %d,%v, want %d,true", v, ok, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue on empty queue should report false")
	}
	if !q.IsEmpty() {
		t.Error("queue should be empty")
	}
}

func TestItemsSnapshot(t *testing.T) {
	q := New[string]()
	q.Enqueue("a")
	q.Enqueue("b")

	items := q.Items()
	if len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Fatalf("Items = %v", items)
	}

	// Mutating the snapshot must not touch the queue.
	items[0] = "z"
	if v, _ := q.Peek(); v != "a" {
		t.Error("Items should return a copy")
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}
