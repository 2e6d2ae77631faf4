package pipeline

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// NewBarSink returns a ProgressSink that renders one progress bar per
// stage on the terminal. The sink is safe to call from the parallel
// compose and refine workers.
func NewBarSink() ProgressSink {
	return newBarSink(os.Stdout)
}

func newBarSink(w io.Writer) ProgressSink {
	var mu sync.Mutex
	var bar *progressbar.ProgressBar
	var stage string

	return func(p Progress) {
		mu.Lock()
		defer mu.Unlock()

		if p.Stage != stage {
			if bar != nil {
				bar.Finish()
				fmt.Fprintln(w)
			}
			stage = p.Stage
			bar = progressbar.NewOptions(100,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(p.Stage),
				progressbar.OptionShowCount(),
				progressbar.OptionFullWidth(),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
		}
		bar.Set(p.Percent)
		if p.Message != "" {
			bar.Describe(fmt.Sprintf("%s: %s", p.Stage, p.Message))
		}
	}
}
