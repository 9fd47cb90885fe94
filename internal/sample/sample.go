// Package sample generates synthetic survey waves, used for demos and as
// test fixtures.
package sample

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/godilite/surveydash/internal/savfile"
)

type question struct {
	name    string
	label   string
	labels  map[float64]string
	weights []int // weight of code i+1
	blank   int   // percent of respondents leaving it empty
}

func scale10(low, high string) map[float64]string {
	return map[float64]string{1: low, 10: high}
}

var questions = []question{
	{
		name:  "Q1",
		label: "How did you originally become aware of ROXOR?",
		labels: map[float64]string{
			1: "Advertisements (TV, Print, Radio or Web)", 2: "Dealer signage and displayed product",
			3: "Friend or family member recommended them", 4: "Online", 5: "Saw a floor model at a show",
			6: "Sponsorship of event", 7: "Research, shopping", 8: "Article in trade magazine",
			9: "Previous ownership, experience, knowledge", 10: "All other",
		},
		weights: []int{14, 22, 18, 16, 6, 2, 9, 1, 7, 5},
	},
	{
		name:    "Q2",
		label:   "How would you rate your overall satisfaction with your ROXOR?",
		labels:  scale10("1 (Very Dissatisfied)", "10 (Very Satisfied)"),
		weights: []int{2, 1, 1, 2, 4, 5, 9, 20, 22, 34},
	},
	{
		name:    "Q4A",
		label:   "Have you had any issues with product or performance quality?",
		labels:  map[float64]string{1: "Yes", 2: "No"},
		weights: []int{22, 78},
	},
	{
		name:    "Q5",
		label:   "How likely would you be to recommend ROXOR to a friend or colleague?",
		labels:  scale10("1 (Definitely Would Not Recommend)", "10 (Definitely Would Recommend)"),
		weights: []int{2, 1, 1, 1, 3, 4, 8, 18, 22, 40},
	},
	{
		name:  "Q7",
		label: "What is your primary use of your new ROXOR?",
		labels: map[float64]string{
			1: "Rural Lifestyle such as hobby farming or recreational",
			2: "Income producing agricultural use such as farming or ranching",
			3: "Commercial use (landscaping, mowing highways, construction, etc)",
			4: "Public Sector/Government",
		},
		weights: []int{58, 27, 13, 2},
	},
	{
		name:  "Q12",
		label: "Overall, how satisfied are you with your dealer experience?",
		labels: map[float64]string{
			1: "1 (Very Dissatisfied)", 10: "10 (Very Satisfied)", 11: "Don't know",
		},
		weights: []int{3, 1, 1, 2, 4, 4, 8, 17, 20, 36, 4},
	},
	{
		name:    "Q18",
		label:   "Please rate your dealer experience when returning to the dealer.",
		labels:  map[float64]string{1: "Poor", 2: "Fair", 3: "Neutral", 4: "Good", 5: "Excellent"},
		weights: []int{5, 7, 14, 34, 40},
		blank:   30,
	},
	{
		name:    "Q20A",
		label:   "Gender",
		labels:  map[float64]string{1: "Male", 2: "Female"},
		weights: []int{86, 14},
	},
	{
		name:  "Q21",
		label: "Marital status",
		labels: map[float64]string{
			1: "Married", 2: "Single", 3: "Divorced", 4: "Widowed", 5: "Other", 6: "Refused",
		},
		weights: []int{68, 12, 9, 5, 2, 4},
	},
	{
		name:    "Q23",
		label:   "Number of people in household",
		weights: []int{14, 44, 16, 15, 7, 4},
	},
	{
		name:  "Q24",
		label: "Highest level of education",
		labels: map[float64]string{
			1: "High school or less", 2: "Some college", 3: "College graduate", 4: "Postgraduate",
		},
		weights: []int{30, 28, 29, 13},
	},
	{
		name:  "Q25",
		label: "Graduated with",
		labels: map[float64]string{
			1: "Associate degree", 2: "Bachelor degree", 3: "Master degree", 4: "Doctorate",
		},
		weights: []int{20, 45, 27, 8},
		blank:   35,
	},
	{
		name:  "QD",
		label: "Age",
		labels: map[float64]string{
			1: "18 - 24", 2: "25 - 34", 3: "35 - 44", 4: "45 - 54", 5: "55 - 64", 6: "65 - 74", 7: "75 or older",
		},
		weights: []int{2, 8, 14, 20, 27, 22, 7},
	},
	{
		name:  "QE",
		label: "Ethnicity",
		labels: map[float64]string{
			1: "Caucasian or White", 2: "African American or Black", 3: "Asian", 4: "Hispanic",
			5: "Other", 6: "Prefer not to answer",
		},
		weights: []int{84, 3, 1, 4, 2, 6},
	},
}

// Wave builds one wave of respondents. The same seed always yields the same
// file.
func Wave(label string, respondents int, seed uint64) *savfile.File {
	r := rand.New(rand.NewPCG(seed, seed^0x5eed))

	f := &savfile.File{
		Header: savfile.Header{Compression: savfile.CompressionBytecode, FileLabel: label},
	}
	for _, q := range questions {
		f.Variables = append(f.Variables, &savfile.Variable{
			Name:        q.name,
			Label:       q.label,
			ValueLabels: q.labels,
		})
	}
	for range respondents {
		row := make([]savfile.Value, len(questions))
		for i, q := range questions {
			if q.blank > 0 && r.IntN(100) < q.blank {
				row[i] = savfile.Missing()
				continue
			}
			row[i] = savfile.Number(float64(pick(r, q.weights)))
		}
		f.Cases = append(f.Cases, row)
	}
	return f
}

// pick returns a 1-based code drawn with the given weights.
func pick(r *rand.Rand, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	n := r.IntN(total)
	for i, w := range weights {
		if n < w {
			return i + 1
		}
		n -= w
	}
	return len(weights)
}

// WriteWaves writes waves .sav files named wave-01.sav, wave-02.sav, ... into
// dir and returns their paths.
func WriteWaves(dir string, waves, respondents int, seed uint64) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sample dir: %w", err)
	}
	paths := make([]string, 0, waves)
	for i := 1; i <= waves; i++ {
		path := filepath.Join(dir, fmt.Sprintf("wave-%02d.sav", i))
		f := Wave(fmt.Sprintf("Wave %d", i), respondents, seed+uint64(i))
		if err := savfile.Create(path, f); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
