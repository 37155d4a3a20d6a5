package models

import (
	"time"
)

// SensorCategory 传感器类型
type SensorCategory string

const (
	CategoryStrainGauge    SensorCategory = "STRAIN_GAUGE"
	CategoryAccelerometer  SensorCategory = "ACCELEROMETER"
	CategoryDisplacement   SensorCategory = "DISPLACEMENT"
	CategoryCrackSensor    SensorCategory = "CRACK_SENSOR"
	CategoryTemperature    SensorCategory = "TEMPERATURE"
	CategoryHumidity       SensorCategory = "HUMIDITY"
	CategoryWeatherStation SensorCategory = "WEATHER_STATION"
	CategoryAirQuality     SensorCategory = "AIR_QUALITY"
	CategoryTrafficCounter SensorCategory = "TRAFFIC_COUNTER"
	CategoryWeightInMotion SensorCategory = "WEIGHT_IN_MOTION"
	CategoryCCTV           SensorCategory = "CCTV"
	CategoryOther          SensorCategory = "OTHER"
)

// ScoreGroup 评分分组（结构 / 环境 / 运营）
type ScoreGroup string

const (
	GroupStructural    ScoreGroup = "structural"
	GroupEnvironmental ScoreGroup = "environmental"
	GroupOperational   ScoreGroup = "operational"
)

// categoryGroups 传感器类型到评分分组的静态映射
// 未识别的类型默认归入运营分组
var categoryGroups = map[SensorCategory]ScoreGroup{
	CategoryStrainGauge:    GroupStructural,
	CategoryAccelerometer:  GroupStructural,
	CategoryDisplacement:   GroupStructural,
	CategoryCrackSensor:    GroupStructural,
	CategoryTemperature:    GroupEnvironmental,
	CategoryHumidity:       GroupEnvironmental,
	CategoryWeatherStation: GroupEnvironmental,
	CategoryAirQuality:     GroupEnvironmental,
	CategoryTrafficCounter: GroupOperational,
	CategoryWeightInMotion: GroupOperational,
	CategoryCCTV:           GroupOperational,
}

// GroupOf 返回传感器类型所属的评分分组
func GroupOf(category SensorCategory) ScoreGroup {
	if group, ok := categoryGroups[category]; ok {
		return group
	}
	return GroupOperational
}

// AssetCategory 资产类型
type AssetCategory string

const (
	AssetBridge      AssetCategory = "BRIDGE"
	AssetTunnel      AssetCategory = "TUNNEL"
	AssetRoadSection AssetCategory = "ROAD_SECTION"
)

// Reading 单条传感器读数（仅存在于内存缓存，不落库）
type Reading struct {
	SensorID       string         `json:"sensor_id"`
	SensorName     string         `json:"sensor_name,omitempty"`
	SensorCategory SensorCategory `json:"sensor_category"`
	MetricName     string         `json:"metric_name"`
	Value          *float64       `json:"value,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// SensorCounts 资产的传感器计数
type SensorCounts struct {
	Active int `json:"active"`
	Total  int `json:"total"`
	Faulty int `json:"faulty"`
}
