package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-doly/pkg/arm"
	"github.com/teslashibe/go-doly/pkg/command"
	"github.com/teslashibe/go-doly/pkg/drive"
	"github.com/teslashibe/go-doly/pkg/driver"
	"github.com/teslashibe/go-doly/pkg/fan"
	"github.com/teslashibe/go-doly/pkg/led"
	"github.com/teslashibe/go-doly/pkg/servo"
	"github.com/teslashibe/go-doly/pkg/sound"
)

// invalid are the errors caused by a bad request rather than the robot.
var invalid = []error{
	arm.ErrInvalidSpeed,
	arm.ErrInvalidAngle,
	arm.ErrInvalidSide,
	drive.ErrInvalidSpeed,
	led.ErrInvalidColor,
	led.ErrInvalidSide,
	servo.ErrInvalidChannel,
	servo.ErrInvalidAngle,
	servo.ErrInvalidSpeed,
	fan.ErrInvalidSpeed,
	sound.ErrNoFile,
	sound.ErrInvalidVolume,
}

// statusOf maps a command error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, command.ErrBusy):
		return fiber.StatusConflict
	case errors.Is(err, command.ErrQueueFull):
		return fiber.StatusTooManyRequests
	case errors.Is(err, command.ErrClosed):
		return fiber.StatusServiceUnavailable
	}
	for _, target := range invalid {
		if errors.Is(err, target) {
			return fiber.StatusBadRequest
		}
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// accepted replies with the ids of submitted commands.
func accepted(c *fiber.Ctx, hs ...*command.Handle) error {
	ids := make([]uint16, 0, len(hs))
	for _, h := range hs {
		ids = append(ids, h.Command().ID)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ids": ids,
	})
}

// id returns the requested command id, or a fresh one.
func (s *Server) id(requested *uint16) uint16 {
	if requested != nil {
		return *requested
	}
	return s.robot.NextID()
}

// handleStatus returns a snapshot of every subsystem
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.robot.Status())
}

// handleDiagnostics returns the fault counters
func (s *Server) handleDiagnostics(c *fiber.Ctx) error {
	return c.JSON(s.robot.Diagnostics())
}

// ArmRequest is the request body for moving the arms
type ArmRequest struct {
	ID    *uint16 `json:"id"`
	Side  string  `json:"side"`
	Speed uint8   `json:"speed"`
	Angle uint16  `json:"angle"`
	Brake bool    `json:"brake"`
}

func (s *Server) handleArm(c *fiber.Ctx) error {
	var req ArmRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	side, err := driver.ParseSide(req.Side)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	hs, err := s.robot.Arms().SetAngle(c.UserContext(), s.id(req.ID), side, req.Speed, req.Angle, req.Brake)
	if err != nil {
		return fail(c, statusOf(err), err)
	}
	return accepted(c, hs...)
}

// MotionRequest holds the motion options shared by drive requests
type MotionRequest struct {
	ID      *uint16 `json:"id"`
	Speed   uint8   `json:"speed"`
	Forward bool    `json:"forward"`
	Brake   bool    `json:"brake"`
}

func (m MotionRequest) motion() drive.Motion {
	motion := drive.DefaultMotion(m.Speed, m.Forward)
	motion.Brake = m.Brake
	return motion
}

// DriveXYRequest is the request body for driving to a point
type DriveXYRequest struct {
	MotionRequest
	X int16 `json:"x"`
	Y int16 `json:"y"`
}

func (s *Server) handleDriveXY(c *fiber.Ctx) error {
	var req DriveXYRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	h, err := s.robot.Wheels().GoXY(c.UserContext(), s.id(req.ID), req.X, req.Y, req.motion())
	if err != nil {
		return fail(c, statusOf(err), err)
	}
	return accepted(c, h)
}

// DriveDistanceRequest is the request body for driving straight
type DriveDistanceRequest struct {
	MotionRequest
	MM uint16 `json:"mm"`
}

func (s *Server) handleDriveDistance(c *fiber.Ctx) error {
	var req DriveDistanceRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	h, err := s.robot.Wheels().GoDistance(c.UserContext(), s.id(req.ID), req.MM, req.motion())
	if err != nil {
		return fail(c, statusOf(err), err)
	}
	return accepted(c, h)
}

// DriveRotateRequest is the request body for rotating in place
type DriveRotateRequest struct {
	MotionRequest
	Angle      float64 `json:"angle"`
	FromCenter bool    `json:"from_center"`
}

func (s *Server) handleDriveRotate(c *fiber.Ctx) error {
	var req DriveRotateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	h, err := s.robot.Wheels().GoRotate(c.UserContext(), s.id(req.ID), req.Angle, req.FromCenter, req.motion())
	if err != nil {
		return fail(c, statusOf(err), err)
	}
	return accepted(c, h)
}

// LedRequest is the request body for an LED activity. Colors are hex
// ("#ff8800") or color code names ("red").
type LedRequest struct {
	ID       *uint16 `json:"id"`
	Side     string  `json:"side"`
	Main     string  `json:"main"`
	Fade     string  `json:"fade"`
	FadeTime uint16  `json:"fade_time"`
}

func (s *Server) handleLed(c *fiber.Ctx) error {
	var req LedRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	side, err := driver.ParseSide(req.Side)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	activity := led.Activity{FadeTime: req.FadeTime}
	if activity.Main, err = led.ParseColor(req.Main); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if req.Fade != "" {
		if activity.Fade, err = led.ParseColor(req.Fade); err != nil {
			return fail(c, fiber.StatusBadRequest, err)
		}
	}
	hs, err := s.robot.Eyes().ProcessActivity(c.UserContext(), s.id(req.ID), side, activity)
	if err != nil {
		return fail(c, statusOf(err), err)
	}
	return accepted(c, hs...)
}

// SoundRequest is the request body for playing a sound
type SoundRequest struct {
	ID     *uint16 `json:"id"`
	File   string  `json:"file"`
	Volume *uint8  `json:"volume"`
}

func (s *Server) handleSound(c *fiber.Ctx) error {
	var req SoundRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	speaker := s.robot.Speaker()
	if req.Volume != nil {
		if err := speaker.SetVolume(*req.Volume); err != nil {
			return fail(c, statusOf(err), err)
		}
	}
	h, err := speaker.Play(c.UserContext(), req.File, s.id(req.ID))
	if err != nil {
		return fail(c, statusOf(err), err)
	}
	return accepted(c, h)
}

// ServoRequest is the request body for moving a servo channel
type ServoRequest struct {
	ID      *uint16  `json:"id"`
	Channel servo.ID `json:"channel"`
	Angle   float64  `json:"angle"`
	Speed   uint8    `json:"speed"`
	Invert  bool     `json:"invert"`
}

func (s *Server) handleServo(c *fiber.Ctx) error {
	var req ServoRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	h, err := s.robot.Servo().SetServo(c.UserContext(), s.id(req.ID), req.Channel, req.Angle, req.Speed, req.Invert)
	if err != nil {
		return fail(c, statusOf(err), err)
	}
	return accepted(c, h)
}

// FanRequest is the request body for setting the fan speed
type FanRequest struct {
	Speed uint8 `json:"speed"`
}

// handleFan sets the fan and replies once the driver accepted the speed.
func (s *Server) handleFan(c *fiber.Ctx) error {
	var req FanRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	f := s.robot.Fan()
	if err := f.SetSpeed(c.UserContext(), req.Speed); err != nil {
		return fail(c, statusOf(err), err)
	}
	return c.JSON(fiber.Map{
		"speed": f.Speed(),
	})
}

// handleAbort aborts a family. Arms and LEDs take ?side=left|right|both,
// servos take ?channel=0|1.
func (s *Server) handleAbort(c *fiber.Ctx) error {
	side, err := driver.ParseSide(c.Query("side"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}

	switch driver.Family(c.Params("family")) {
	case driver.FamilyArm:
		s.robot.Arms().Abort(side)
	case driver.FamilyLED:
		s.robot.Eyes().Abort(side)
	case driver.FamilyDrive:
		s.robot.Wheels().Abort()
	case driver.FamilySound:
		s.robot.Speaker().Abort()
	case driver.FamilyServo:
		ch, err := strconv.ParseUint(c.Query("channel", "0"), 10, 8)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, err)
		}
		if err := s.robot.Servo().Abort(servo.ID(ch)); err != nil {
			return fail(c, statusOf(err), err)
		}
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown family " + c.Params("family"),
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
