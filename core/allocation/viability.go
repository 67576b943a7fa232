package allocation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kilianp07/fieldalloc/core/model"
)

// qualificationKeywords maps a service category fragment to the keywords
// that identify relevant certificates.
var qualificationKeywords = []struct {
	category string
	keywords []string
}{
	{"pat", []string{"pat", "portable"}},
	{"eicr", []string{"18th", "electrical", "eicr"}},
	{"electrical", []string{"18th", "electrical", "eicr"}},
	{"fire", []string{"fire", "bs 5839", "bs5839"}},
	{"emergency", []string{"emergency", "lighting", "bs 5266", "bs5266"}},
	{"gas", []string{"gas safe", "gas"}},
}

// RelevantQualifications returns the engineer's qualifications whose name
// matches the service category. Keywords match whole words only.
func RelevantQualifications(eng model.Engineer, svc model.Service) []model.Qualification {
	cat := words(svc.Category + " " + svc.Name)
	var keys []string
	for _, q := range qualificationKeywords {
		if hasPhrase(cat, q.category) {
			keys = append(keys, q.keywords...)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	var out []model.Qualification
	for _, q := range eng.Qualifications {
		name := words(q.Name)
		for _, k := range keys {
			if hasPhrase(name, k) {
				out = append(out, q)
				break
			}
		}
	}
	return out
}

// words lower-cases s and reduces it to space-separated alphanumeric words,
// padded with a space on each side.
func words(s string) string {
	f := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(f, " ") + " "
}

func hasPhrase(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ")
}

// Check evaluates the hard constraints for one engineer on one half-day.
// dayJobs is the engineer's existing scheduled jobs that day.
func Check(eng model.Engineer, svc model.Service, date time.Time, half model.HalfDay, dayJobs, dailyCap int) (bool, []string) {
	var reasons []string

	comp, ok := eng.Competency(svc.ID)
	switch {
	case !ok:
		reasons = append(reasons, fmt.Sprintf("no competency for %s", svc.ID))
	case !comp.Certified:
		reasons = append(reasons, fmt.Sprintf("competency for %s not certified", svc.ID))
	}

	if quals := RelevantQualifications(eng, svc); len(quals) > 0 {
		valid := false
		names := make([]string, 0, len(quals))
		for _, q := range quals {
			if q.ValidOn(date) {
				valid = true
				break
			}
			names = append(names, q.Name)
		}
		if !valid {
			reasons = append(reasons, fmt.Sprintf("qualification expired: %s", strings.Join(names, ", ")))
		}
	}

	if available, explicit := eng.AvailabilityOn(date, half); explicit && !available {
		reasons = append(reasons, fmt.Sprintf("unavailable on %s %s", date.Format(time.DateOnly), half))
	}
	if dailyCap > 0 && dayJobs >= dailyCap {
		reasons = append(reasons, fmt.Sprintf("daily cap of %d jobs reached", dailyCap))
	}
	return len(reasons) == 0, reasons
}
