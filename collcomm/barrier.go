package collcomm

// Barrier blocks until every rank in the group has called
// Barrier.
//
// Arrivals are gathered up the reduction tree to rank 0,
// which then releases the tree from the top down.
func Barrier(c *Comms) error {
	parent, children := treePosition(c.Rank(), c.Size(), 0)
	for _, child := range children {
		if _, err := c.Recv(child, tagBarrierUp); err != nil {
			return err
		}
	}
	if parent >= 0 {
		c.Send(parent, tagBarrierUp, nil, 0)
		if _, err := c.Recv(parent, tagBarrierDown); err != nil {
			return err
		}
	}
	if len(children) > 0 {
		payloads := make([]interface{}, len(children))
		sizes := make([]float64, len(children))
		c.sendMany(children, tagBarrierDown, payloads, sizes)
	}
	return nil
}
