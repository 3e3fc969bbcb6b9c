package shellies

import (
	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/device"
	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/options"
	"github.com/Xatter/shellies-ng/internal/rpc"
)

// discover is subscribed to every registered discoverer. The pending check
// runs before any goroutine starts so that concurrent reports of the same
// device cannot both pass it.
func (s *Shellies) discover(ids device.Identifiers) {
	if err := ids.Validate(); err != nil {
		logging.Warn("Ignoring invalid discovery", zap.Error(err))
		return
	}
	if !s.beginPending(ids.DeviceID) {
		return
	}

	logging.Debug("Device discovered",
		logging.DeviceField(string(ids.DeviceID)),
		zap.String("model", ids.Model),
		zap.String("address", ids.Address),
	)

	if !s.spawn(func() { s.process(ids) }) {
		s.abandon(ids.DeviceID)
	}
}

// process takes a pending identity to registered, ignored or back to unknown.
func (s *Shellies) process(ids device.Identifiers) {
	id := ids.DeviceID

	opts, err := options.Resolve(s.ctx, s.resolver, string(id))
	if err != nil {
		s.fail(id, err)
		return
	}

	if opts.Exclude {
		if s.ignore(id) {
			logging.Info("Device excluded", logging.DeviceField(string(id)))
			s.emitExclude(id)
		}
		return
	}

	if ids.Model != "" && !s.constructor.Recognizes(ids.Model) {
		s.unrecognized(ids)
		return
	}

	h, err := s.factory.Create(string(id), ids.Address, opts)
	if err != nil {
		s.fail(id, err)
		return
	}

	if ids.Model == "" {
		info, err := rpc.GetDeviceInfo(s.ctx, h)
		if err != nil {
			_ = h.Close()
			s.fail(id, err)
			return
		}
		ids.Model = info.Model
		if ids.Gen == 0 {
			ids.Gen = info.Gen
		}
		if !s.constructor.Recognizes(ids.Model) {
			_ = h.Close()
			s.unrecognized(ids)
			return
		}
	}

	d, err := s.constructor.Construct(ids, h)
	if err != nil {
		_ = h.Close()
		s.fail(id, err)
		return
	}

	if err := s.Add(d); err != nil {
		_ = closeDevice(d)
		s.emitError(id, err)
		return
	}

	logging.Info("Device added",
		logging.DeviceField(string(id)),
		zap.String("model", ids.Model),
		zap.String("protocol", h.Protocol().String()),
	)
	s.autoLoad(d)
}

func (s *Shellies) fail(id device.DeviceID, err error) {
	s.abandon(id)
	s.emitError(id, err)
}

func (s *Shellies) unrecognized(ids device.Identifiers) {
	if !s.ignore(ids.DeviceID) {
		return
	}
	logging.Info("Unrecognized device model",
		logging.DeviceField(string(ids.DeviceID)),
		zap.String("model", ids.Model),
	)
	s.emitUnknown(ids.DeviceID, ids.Model, ids)
}
