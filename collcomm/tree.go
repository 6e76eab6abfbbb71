package collcomm

// treePosition arranges the ranks of a group in a binary
// tree rooted at root and returns the parent and children
// of rank.
//
// The tree is laid out like a binary heap over ranks
// relative to root, so ranks root, root+1, root+2, ...
// (mod size) fill the rows from the top down.
// The parent is -1 for the root. Children are ordered by
// their position in the tree.
func treePosition(rank, size, root int) (parent int, children []int) {
	rel := (rank - root + size) % size
	parent = -1
	if rel > 0 {
		parent = ((rel-1)/2 + root) % size
	}
	for _, child := range []int{2*rel + 1, 2*rel + 2} {
		if child < size {
			children = append(children, (child+root)%size)
		}
	}
	return parent, children
}
