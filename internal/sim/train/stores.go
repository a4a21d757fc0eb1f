package train

import "sort"

// Inventory is an item stack store bounded by a slot count (0 = unbounded).
type Inventory struct {
	Slots int
	items map[string]int
}

func NewInventory(slots int) *Inventory {
	return &Inventory{Slots: slots, items: map[string]int{}}
}

func (inv *Inventory) Count(item string) int {
	if inv == nil {
		return 0
	}
	return inv.items[item]
}

// Add stores up to n items and returns how many were accepted. A new item kind
// needs a free slot.
func (inv *Inventory) Add(item string, n int) int {
	if inv == nil || item == "" || n <= 0 {
		return 0
	}
	if inv.items == nil {
		inv.items = map[string]int{}
	}
	if _, ok := inv.items[item]; !ok && inv.Slots > 0 && len(inv.items) >= inv.Slots {
		return 0
	}
	inv.items[item] += n
	return n
}

// Take removes up to n items and returns how many were removed.
func (inv *Inventory) Take(item string, n int) int {
	if inv == nil || n <= 0 {
		return 0
	}
	have := inv.items[item]
	if have <= 0 {
		return 0
	}
	if n > have {
		n = have
	}
	if have-n == 0 {
		delete(inv.items, item)
	} else {
		inv.items[item] = have - n
	}
	return n
}

// Items returns a copy of the non-empty stacks.
func (inv *Inventory) Items() map[string]int {
	out := map[string]int{}
	if inv == nil {
		return out
	}
	for k, v := range inv.items {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// SortedItems returns item ids in lexical order.
func (inv *Inventory) SortedItems() []string {
	if inv == nil {
		return nil
	}
	keys := make([]string, 0, len(inv.items))
	for k, v := range inv.items {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Tank holds a single fluid.
type Tank struct {
	Fluid    string `json:"fluid,omitempty"`
	Amount   int    `json:"amount"`
	Capacity int    `json:"capacity"`
}

// Fill adds fluid and returns the accepted amount. A tank holding a different
// fluid accepts nothing.
func (t *Tank) Fill(fluid string, n int) int {
	if t == nil || fluid == "" || n <= 0 {
		return 0
	}
	if t.Amount > 0 && t.Fluid != fluid {
		return 0
	}
	room := t.Capacity - t.Amount
	if t.Capacity <= 0 {
		room = n
	}
	if n > room {
		n = room
	}
	if n <= 0 {
		return 0
	}
	t.Fluid = fluid
	t.Amount += n
	return n
}

// Drain removes up to n units and returns the drained amount.
func (t *Tank) Drain(n int) int {
	if t == nil || n <= 0 || t.Amount <= 0 {
		return 0
	}
	if n > t.Amount {
		n = t.Amount
	}
	t.Amount -= n
	if t.Amount == 0 {
		t.Fluid = ""
	}
	return n
}
