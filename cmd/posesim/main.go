// posesim sends synthetic JSON pose frames over UDP so the pipeline can be
// exercised without a camera or pose estimator. Each simulated person either
// performs squats or walks a slow loop, offset so multiple people stay apart.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net"
	"time"
)

var (
	target   = flag.String("target", "127.0.0.1:9999", "UDP address to send frames to")
	people   = flag.Int("people", 1, "Number of simulated people")
	rate     = flag.Float64("rate", 20, "Frames per second")
	period   = flag.Duration("period", 4*time.Second, "Squat cycle period")
	walkers  = flag.Int("walkers", 0, "How many of the people walk instead of squatting")
	duration = flag.Duration("duration", 0, "How long to run (0 runs until interrupted)")
)

type landmark [3]float64

type person struct {
	BBox       [4]float64          `json:"bbox"`
	Confidence float64             `json:"confidence"`
	Landmarks  map[string]landmark `json:"landmarks"`
}

type frame struct {
	TimestampMS int64    `json:"timestamp_ms"`
	People      []person `json:"people"`
}

// squatter returns a person whose knee angle oscillates between 170 and 95
// degrees over the configured period. phase is the cycle position in [0, 1).
func squatter(originX float64, phase float64) person {
	knee := 132.5 + 37.5*math.Cos(2*math.Pi*phase)

	phi := (180 - knee) * math.Pi / 180
	dx := 100 * math.Sin(phi)
	dy := 100 * math.Cos(phi)

	return person{
		BBox:       [4]float64{originX - 60, 0, 120, 320},
		Confidence: 0.95,
		Landmarks: map[string]landmark{
			"nose":           {originX, 20, 0.99},
			"left_shoulder":  {originX - 20, 60, 0.98},
			"right_shoulder": {originX + 20, 60, 0.98},
			"left_hip":       {originX - 10, 160, 0.97},
			"right_hip":      {originX + 10, 160, 0.97},
			"left_knee":      {originX - 10, 260, 0.95},
			"right_knee":     {originX + 10, 260, 0.95},
			"left_ankle":     {originX - 10 + dx, 260 + dy, 0.93},
			"right_ankle":    {originX + 10 + dx, 260 + dy, 0.93},
		},
	}
}

// walker returns an upright person pacing back and forth along x.
func walker(originX float64, phase float64) person {
	x := originX + 120*math.Sin(2*math.Pi*phase/8)

	return person{
		BBox:       [4]float64{x - 50, 0, 100, 320},
		Confidence: 0.9,
		Landmarks: map[string]landmark{
			"left_shoulder":  {x - 15, 60, 0.96},
			"right_shoulder": {x + 15, 60, 0.96},
			"left_hip":       {x - 10, 160, 0.95},
			"right_hip":      {x + 10, 160, 0.95},
		},
	}
}

func main() {
	flag.Parse()

	if *people < 1 {
		log.Fatal("need at least one person")
	}
	if *walkers > *people {
		log.Fatal("more walkers than people")
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	interval := time.Duration(float64(time.Second) / *rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline time.Time
	if *duration > 0 {
		deadline = time.Now().Add(*duration)
	}

	fmt.Printf("sending %d-person frames to %s at %.0f fps\n", *people, *target, *rate)

	start := time.Now()
	sent := 0
	for now := range ticker.C {
		if !deadline.IsZero() && now.After(deadline) {
			break
		}

		f := frame{TimestampMS: now.UnixMilli()}
		elapsed := now.Sub(start)
		for i := 0; i < *people; i++ {
			// Offset each person in space and in cycle phase.
			originX := 200 + float64(i)*400
			phase := math.Mod(elapsed.Seconds()/period.Seconds()+float64(i)*0.25, 1)
			if i < *walkers {
				f.People = append(f.People, walker(originX, elapsed.Seconds()+float64(i)))
			} else {
				f.People = append(f.People, squatter(originX, phase))
			}
		}

		data, err := json.Marshal(f)
		if err != nil {
			log.Fatalf("failed to encode frame: %v", err)
		}
		if _, err := conn.Write(data); err != nil {
			log.Printf("send error: %v", err)
		}
		sent++
		if sent%200 == 0 {
			log.Printf("sent %d frames", sent)
		}
	}

	fmt.Printf("done, sent %d frames\n", sent)
}
