package sim

import (
	"fmt"
	"math"
)

// Point is a device position in the plane.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Layout places n devices spacing units apart.
//
//	line: along the x axis
//	grid: row-major on a square grid of ceil(sqrt(n)) columns
//	ring: evenly on a circle whose circumference is n*spacing
func Layout(topology string, n int, spacing float64) ([]Point, error) {
	pts := make([]Point, n)
	switch topology {
	case "line":
		for i := range pts {
			pts[i] = Point{X: float64(i) * spacing}
		}
	case "grid":
		cols := int(math.Ceil(math.Sqrt(float64(n))))
		for i := range pts {
			pts[i] = Point{X: float64(i%cols) * spacing, Y: float64(i/cols) * spacing}
		}
	case "ring":
		if n == 1 {
			break
		}
		r := float64(n) * spacing / (2 * math.Pi)
		for i := range pts {
			a := 2 * math.Pi * float64(i) / float64(n)
			pts[i] = Point{X: r * math.Cos(a), Y: r * math.Sin(a)}
		}
	default:
		return nil, fmt.Errorf("sim: unknown topology %q", topology)
	}
	return pts, nil
}

// link is a directed neighbor relation.
type link struct {
	to   int
	dist float64
}

// connect links every pair of devices at distance in (0, rng].
func connect(pts []Point, rng float64) [][]link {
	links := make([][]link, len(pts))
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			d := pts[i].Dist(pts[j])
			if d <= 0 || d > rng {
				continue
			}
			links[i] = append(links[i], link{to: j, dist: d})
			links[j] = append(links[j], link{to: i, dist: d})
		}
	}
	return links
}
