package kinematics

// CoreXYKinematics implements the contract for CoreXY machines, where the A
// and B drives move X and Y jointly: A = X + Y, B = X - Y.
type CoreXYKinematics struct {
	base
}

// NewCoreXY creates a CoreXY kinematics instance.
func NewCoreXY() *CoreXYKinematics {
	return &CoreXYKinematics{base: newBase(CoreXYKind, LinearMotion)}
}

// GetName returns the geometry name.
func (k *CoreXYKinematics) GetName(forStatusReport bool) string {
	if forStatusReport {
		return "coreXY"
	}
	return "CoreXY"
}

// CartesianToMotorSteps maps X and Y onto the coupled A and B drives.
func (k *CoreXYKinematics) CartesianToMotorSteps(machinePos, stepsPerUnit []float64, numAxes int, motorPos []int32) error {
	motorPos[XAxis] = stepRound((machinePos[XAxis] + machinePos[YAxis]) * stepsPerUnit[XAxis])
	motorPos[YAxis] = stepRound((machinePos[XAxis] - machinePos[YAxis]) * stepsPerUnit[YAxis])
	motorPos[ZAxis] = stepRound(machinePos[ZAxis] * stepsPerUnit[ZAxis])
	passThroughSteps(machinePos, stepsPerUnit, ZAxis+1, numAxes, motorPos)
	return nil
}

// MotorStepsToCartesian recovers X = (A+B)/2 and Y = (A-B)/2.
func (k *CoreXYKinematics) MotorStepsToCartesian(motorPos []int32, stepsPerUnit []float64, numDrives int, machinePos []float64) {
	a := float64(motorPos[XAxis]) / stepsPerUnit[XAxis]
	b := float64(motorPos[YAxis]) / stepsPerUnit[YAxis]
	machinePos[XAxis] = (a + b) / 2.0
	machinePos[YAxis] = (a - b) / 2.0
	machinePos[ZAxis] = float64(motorPos[ZAxis]) / stepsPerUnit[ZAxis]
	passThroughCartesian(motorPos, stepsPerUnit, ZAxis+1, numDrives, machinePos)
}

// MotorFactor reports each coupled drive's share of a unit direction vector.
func (k *CoreXYKinematics) MotorFactor(drive int, directionVector []float64) float64 {
	switch drive {
	case XAxis:
		return directionVector[XAxis] + directionVector[YAxis]
	case YAxis:
		return directionVector[XAxis] - directionVector[YAxis]
	}
	return directionVector[drive]
}

// ShowCoordinatesWhenNotHomed is true: the mapping is linear.
func (k *CoreXYKinematics) ShowCoordinatesWhenNotHomed() bool {
	return true
}
