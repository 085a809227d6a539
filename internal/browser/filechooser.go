package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ListenFileChooser intercepts every native file dialog the page opens and attaches paths
// to it. It blocks until ctx is done and restores the default dialog behavior on return,
// so it is meant to run in its own goroutine for the lifetime of a run.
func (b *Browser) ListenFileChooser(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		<-ctx.Done()
		return nil
	}
	if err := (proto.PageSetInterceptFileChooserDialog{Enabled: true}).Call(b.page); err != nil {
		return fmt.Errorf("intercept file chooser: %w", err)
	}
	defer func() {
		_ = proto.PageSetInterceptFileChooserDialog{Enabled: false}.Call(b.page)
	}()

	wait := b.page.Context(ctx).EachEvent(func(e *proto.PageFileChooserOpened) {
		err := proto.DOMSetFileInputFiles{
			Files:         paths,
			BackendNodeID: e.BackendNodeID,
		}.Call(b.page)
		if err != nil {
			b.logger.Warn("file chooser attach failed", zap.Error(err))
			return
		}
		b.logger.Info("attached file to chooser", zap.Strings("paths", paths), zap.String("mode", string(e.Mode)))
	})
	wait()
	return nil
}
