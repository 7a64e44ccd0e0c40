package sampling

import "github.com/teslashibe/go-doly/pkg/driver"

// FaultReporter receives sensor faults that detectors tolerate and skip.
type FaultReporter interface {
	ReportSensorFault(family driver.Family, err error)
}

// FaultReporterFunc adapts a function to FaultReporter.
type FaultReporterFunc func(family driver.Family, err error)

func (f FaultReporterFunc) ReportSensorFault(family driver.Family, err error) {
	f(family, err)
}

type nopReporter struct{}

func (nopReporter) ReportSensorFault(driver.Family, error) {}

// OrNop returns r, or a reporter that discards faults when r is nil.
func OrNop(r FaultReporter) FaultReporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}
