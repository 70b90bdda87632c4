// fyneprobe opens a window showing a test pattern drawn by the frame renderer
// and closes it after a few seconds. Use it to check that the desktop viewer
// can open a window on this machine.
package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"github.com/spf13/pflag"

	"github.com/iafilius/Chip8Dashboard/src/frames"
)

// checker returns a 64x32 pattern of 8x8 blocks.
func checker() frames.Payload {
	cells := make([][]bool, frames.Height)
	for y := range cells {
		cells[y] = make([]bool, frames.Width)
		for x := range cells[y] {
			cells[y][x] = (x/8+y/8)%2 == 0
		}
	}
	return frames.GridPayload(cells)
}

func main() {
	hold := pflag.Duration("hold", 5*time.Second, "how long to keep the window open")
	scale := pflag.Int("scale", frames.DefaultScale, "frame upscale factor")
	pflag.Parse()

	r := frames.NewRenderer(*scale)
	if err := r.Render(frames.SourceChip8, checker()); err != nil {
		fmt.Println("[fyneprobe] render:", err)
		return
	}
	fmt.Printf("[fyneprobe] starting window with %s\n", r)
	a := app.New()
	w := a.NewWindow("Frame Probe")
	img := canvas.NewImageFromImage(r.Composite())
	img.ScaleMode = canvas.ImageScalePixels
	img.FillMode = canvas.ImageFillOriginal
	w.SetContent(img)
	go func() {
		time.Sleep(*hold)
		fmt.Println("[fyneprobe] closing window via fyne.Do")
		fyne.Do(func() { w.Close() })
	}()
	w.ShowAndRun()
	fmt.Println("[fyneprobe] exited cleanly")
}
