package core

// connSet groups the live clients of one user.
type connSet map[*Client]struct{}

func (s connSet) add(c *Client) bool {
	if _, exists := s[c]; exists {
		return false
	}
	s[c] = struct{}{}
	return true
}

func (s connSet) remove(c *Client) bool {
	if _, exists := s[c]; !exists {
		return false
	}
	delete(s, c)
	return true
}

// send delivers to every client of the set and returns how many accepted it.
func (s connSet) send(event *Event) int {
	n := 0
	for client := range s {
		if offer(client, event) {
			n++
		}
	}
	return n
}

// offer never blocks: a full buffer drops the event for that client.
func offer(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		return false
	}
}
