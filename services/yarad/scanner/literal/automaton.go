package literal

// acNode internal automaton node
type acNode struct {
	next map[byte]*acNode
	fail *acNode
	out  []int // indexes into automaton.rules
}

// automaton is a compiled multi-pattern matcher. Immutable after build.
type automaton struct {
	root   *acNode
	rules  []rule
	maxLen int
}

// hit is a pattern occurrence ending at offset end (exclusive) in the scanned chunk.
type hit struct {
	rule int
	end  int
}

func buildAutomaton(rules []rule) *automaton {
	root := &acNode{next: make(map[byte]*acNode)}
	maxLen := 0
	for idx, r := range rules {
		cur := root
		for i := 0; i < len(r.pattern); i++ {
			b := r.pattern[i]
			nxt, ok := cur.next[b]
			if !ok {
				nxt = &acNode{next: make(map[byte]*acNode)}
				cur.next[b] = nxt
			}
			cur = nxt
		}
		cur.out = append(cur.out, idx)
		if len(r.pattern) > maxLen {
			maxLen = len(r.pattern)
		}
	}
	// BFS failure links
	queue := make([]*acNode, 0, len(root.next))
	for _, n := range root.next {
		n.fail = root
		queue = append(queue, n)
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for b, nxt := range n.next {
			f := n.fail
			for f != nil && f.next[b] == nil {
				f = f.fail
			}
			if f == nil {
				nxt.fail = root
			} else {
				nxt.fail = f.next[b]
			}
			if len(nxt.fail.out) > 0 {
				nxt.out = append(nxt.out, nxt.fail.out...)
			}
			queue = append(queue, nxt)
		}
	}
	return &automaton{root: root, rules: rules, maxLen: maxLen}
}

// scan reports every pattern occurrence in data, in order of end offset.
func (a *automaton) scan(data []byte, emit func(hit)) {
	n := a.root
	for i, b := range data {
		for n != nil && n.next[b] == nil {
			n = n.fail
		}
		if n == nil {
			n = a.root
			continue
		}
		n = n.next[b]
		for _, idx := range n.out {
			emit(hit{rule: idx, end: i + 1})
		}
	}
}
