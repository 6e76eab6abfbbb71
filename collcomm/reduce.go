package collcomm

// A Reducer is an algorithm that applies a ReduceFn to
// vectors distributed across the ranks of a group, leaving
// the result at a root rank.
type Reducer interface {
	// Reduce returns the reduction at root and nil at every
	// other rank.
	Reduce(c *Comms, root int, data []float64, fn ReduceFn) ([]float64, error)
}

// A LinearReducer sends every vector straight to the root,
// which reduces them all at once in rank order.
type LinearReducer struct{}

// Reduce runs fn on all of the ranks' vectors at root.
func (LinearReducer) Reduce(c *Comms, root int, data []float64, fn ReduceFn) ([]float64, error) {
	vecs, err := Gather(c, root, data)
	if err != nil || c.Rank() != root {
		return nil, err
	}
	return fn(c.Handle, vecs...), nil
}

// A TreeReducer arranges the ranks in a binary tree and
// reduces up the tree, so that the root only receives a
// message from each of its two children.
type TreeReducer struct{}

// Reduce calls fn on vectors along a tree and returns the
// reduced vector at root.
//
// Every inner rank folds its own vector first, then its
// children in tree order, which fixes the summation order
// for a given group size.
func (TreeReducer) Reduce(c *Comms, root int, data []float64, fn ReduceFn) ([]float64, error) {
	parent, children := treePosition(c.Rank(), c.Size(), root)

	vecs := [][]float64{data}
	for _, child := range children {
		env, err := c.Recv(child, tagReduce)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, env.Payload.([]float64))
	}

	reduced := data
	if len(vecs) > 1 {
		reduced = fn(c.Handle, vecs...)
	}
	if parent >= 0 {
		c.Send(parent, tagReduce, append([]float64(nil), reduced...), vecSize(reduced))
		return nil, nil
	}
	return append([]float64(nil), reduced...), nil
}
