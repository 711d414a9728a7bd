package kinematics

// CartesianKinematics implements the contract for machines whose drives map
// one-to-one onto the Cartesian axes. It uses the shared defaults for the
// workspace, calibration and segmentation behaviors.
type CartesianKinematics struct {
	base
}

// NewCartesian creates a Cartesian kinematics instance.
func NewCartesian() *CartesianKinematics {
	return &CartesianKinematics{base: newBase(CartesianKind, LinearMotion)}
}

// GetName returns the geometry name.
func (k *CartesianKinematics) GetName(forStatusReport bool) string {
	if forStatusReport {
		return "cartesian"
	}
	return "Cartesian"
}

// CartesianToMotorSteps is the identity mapping scaled by steps per unit.
func (k *CartesianKinematics) CartesianToMotorSteps(machinePos, stepsPerUnit []float64, numAxes int, motorPos []int32) error {
	passThroughSteps(machinePos, stepsPerUnit, 0, numAxes, motorPos)
	return nil
}

// MotorStepsToCartesian is the inverse identity mapping.
func (k *CartesianKinematics) MotorStepsToCartesian(motorPos []int32, stepsPerUnit []float64, numDrives int, machinePos []float64) {
	passThroughCartesian(motorPos, stepsPerUnit, 0, numDrives, machinePos)
}

// ShowCoordinatesWhenNotHomed is true: the motor-to-machine mapping is
// linear with no unknown reference offset.
func (k *CartesianKinematics) ShowCoordinatesWhenNotHomed() bool {
	return true
}
