package explain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/envmon/internal/model"
)

var titler = cases.Title(language.English, cases.NoLower)

// FeatureLabel turns a column name like "Proximity_to_Industry" into a
// display label.
func FeatureLabel(name string) string {
	return titler.String(strings.ReplaceAll(name, "_", " "))
}

// ClassName returns classes[label], falling back to "class N".
func ClassName(classes []string, label int) string {
	if label >= 0 && label < len(classes) && classes[label] != "" {
		return classes[label]
	}
	return fmt.Sprintf("class %d", label)
}

// Summarize renders a one-line operator summary of a result using its n
// strongest features. It returns "" when the result has no explanation.
func Summarize(res *model.Result, classes []string, n int) string {
	if res == nil || res.Explanation == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Predicted %s (%.1f%% probability).", ClassName(classes, res.ClassLabel), res.MaxProbability()*100)

	top := res.Explanation.Top(n)
	if len(top) == 0 {
		return b.String()
	}

	b.WriteString(" Key factors: ")
	for i, e := range top {
		if i > 0 {
			b.WriteString(", ")
		}
		direction := "raised"
		if e.Contribution < 0 {
			direction = "lowered"
		}
		fmt.Fprintf(&b, "%s %s (%.1f%%)", FeatureLabel(e.Feature), direction, e.Percent)
	}
	b.WriteString(".")
	return b.String()
}
