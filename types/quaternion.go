package types

import "github.com/chewxy/math32"

// A rotation quaternion.
type Quat struct {
	V Vec3
	W float32
}

// Create identity quaternion.
func QuatIdent() Quat {
	return Quat{W: 1.0}
}

// Create a quaternion from an axis vector and an angle.
func QuatFromAxisAngle(axis Vec3, angle float32) Quat {
	sin, cos := math32.Sincos(angle * 0.5)
	return Quat{V: axis.Mul(sin), W: cos}
}

// Create a quaternion from yaw/pitch/roll angles given in degrees. The
// rotation is applied in X, Y, Z order.
func QuatFromEuler(angles Vec3) Quat {
	const toRad = math32.Pi / 180.0
	x := QuatFromAxisAngle(Vec3{1, 0, 0}, angles[0]*toRad)
	y := QuatFromAxisAngle(Vec3{0, 1, 0}, angles[1]*toRad)
	z := QuatFromAxisAngle(Vec3{0, 0, 1}, angles[2]*toRad)
	return z.Mul(y.Mul(x)).Normalize()
}

// Multiply two quaternions. Multiplication is not commutative.
func (q Quat) Mul(q2 Quat) Quat {
	return Quat{
		q.V.Cross(q2.V).Add(q2.V.Mul(q.W)).Add(q.V.Mul(q2.W)),
		q.W*q2.W - q.V.Dot(q2.V),
	}
}

// Normalize the quaternion.
func (q Quat) Normalize() Quat {
	length := math32.Sqrt(q.W*q.W + q.V.Dot(q.V))
	if length < floatCmpEpsilon {
		return QuatIdent()
	}
	return Quat{q.V.Mul(1 / length), q.W / length}
}

// Get the homogeneous rotation matrix for this quaternion.
func (q Quat) Mat4() Mat4 {
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]
	return Mat4{
		1 - 2*y*y - 2*z*z, 2*x*y + 2*w*z, 2*x*z - 2*w*y, 0,
		2*x*y - 2*w*z, 1 - 2*x*x - 2*z*z, 2*y*z + 2*w*x, 0,
		2*x*z + 2*w*y, 2*y*z - 2*w*x, 1 - 2*x*x - 2*y*y, 0,
		0, 0, 0, 1,
	}
}

// Build a transformation matrix M = T * R * S.
func TRS(translation, eulerAngles, scale Vec3) Mat4 {
	return Translate4(translation).Mul4(QuatFromEuler(eulerAngles).Mat4()).Mul4(Scale4(scale))
}
