package worker

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/vault/events"
)

func TestRequestsRunInSubmissionOrder(t *testing.T) {
	Convey("two submitted operations never interleave their events", t, func() {
		ch := make(chan events.Event, 16)
		w := New(events.Monitor{Chan: ch})
		defer w.Close()

		w.Submit(Request{Op: events.OpBackup, Run: func(mon events.Monitor) {
			mon.Progress(events.OpBackup, map[string]interface{}{"unit": "A"})
			time.Sleep(5 * time.Millisecond)
			mon.Done(events.OpBackup, map[string]interface{}{"unit": "A"})
		}})
		w.Submit(Request{Op: events.OpBackup, Run: func(mon events.Monitor) {
			mon.Progress(events.OpBackup, map[string]interface{}{"unit": "B"})
			mon.Done(events.OpBackup, map[string]interface{}{"unit": "B"})
		}})

		var seen []string
		for i := 0; i < 4; i++ {
			e := <-ch
			seen = append(seen, e.Data["unit"].(string)+":"+string(e.Kind))
		}
		So(seen, ShouldResemble, []string{
			"A:progress", "A:done", "B:progress", "B:done",
		})
	})
}
