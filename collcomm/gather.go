package collcomm

// Gather collects one vector from every rank at root.
//
// At the root, the result is indexed by rank and includes
// the root's own vector. Other ranks get a nil result.
func Gather(c *Comms, root int, vec []float64) ([][]float64, error) {
	if c.Rank() != root {
		c.Send(root, tagGather, append([]float64(nil), vec...), vecSize(vec))
		return nil, nil
	}
	res := make([][]float64, c.Size())
	res[root] = append([]float64(nil), vec...)
	for r := range res {
		if r == root {
			continue
		}
		env, err := c.Recv(r, tagGather)
		if err != nil {
			return nil, err
		}
		res[r] = env.Payload.([]float64)
	}
	return res, nil
}

func vecSize(vec []float64) float64 {
	return float64(len(vec) * 8)
}
