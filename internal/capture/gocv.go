package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// GocvCamera opens a local video device through OpenCV.
type GocvCamera struct {
	// Devices maps a facing preference to a device index. Missing entries
	// fall back to Default.
	Devices map[Facing]int
	Default int
}

// Open implements Camera.
func (c GocvCamera) Open(ctx context.Context, facing Facing) (FrameSource, error) {
	id, ok := c.Devices[facing]
	if !ok {
		id = c.Default
	}
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: opening video device %d: %w", ErrUnavailable, id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: video device %d did not open", ErrUnavailable, id)
	}
	return &gocvSource{vc: vc, mat: gocv.NewMat()}, nil
}

type gocvSource struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (s *gocvSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vc != nil && s.vc.IsOpened()
}

func (s *gocvSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return 0, 0
	}
	return int(s.vc.Get(gocv.VideoCaptureFrameWidth)), int(s.vc.Get(gocv.VideoCaptureFrameHeight))
}

func (s *gocvSource) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return nil, ErrNotReady
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, ErrNotReady
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

func (s *gocvSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return nil
	}
	s.mat.Close()
	err := s.vc.Close()
	s.vc = nil
	return err
}
