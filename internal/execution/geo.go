package execution

import "math"

// proximityRadiusMeters はキーポイント到達と判定する距離の閾値（メートル）。
// 境界値ちょうどは到達扱いとする。
const proximityRadiusMeters = 50.0

// earthRadiusMeters は地球の平均半径（メートル）。
const earthRadiusMeters = 6371000.0

// distanceMeters は2点間の大円距離（メートル）をハバーサイン公式で計算する。
// 座標はWGS-84度単位。
func distanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// withinProximity は2点がキーポイント到達半径内にあるかどうかを返す。
func withinProximity(lat1, lng1, lat2, lng2 float64) bool {
	return distanceMeters(lat1, lng1, lat2, lng2) <= proximityRadiusMeters
}
